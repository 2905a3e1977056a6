package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// ---------------------------------------------------------------------------
// CLI adapter
// ---------------------------------------------------------------------------

const cliChatID = "local"

// CLIAdapter is an interactive terminal transport. Lines typed at the
// prompt become inbound messages; assistant output streams to stdout.
type CLIAdapter struct {
	*BaseAdapter
	rl *readline.Instance
}

// NewCLIAdapter creates a terminal adapter bound to stdin/stdout.
func NewCLIAdapter() *CLIAdapter {
	a := &CLIAdapter{BaseAdapter: NewBaseAdapter(bus.ChannelCLI, "cli")}
	a.Bind(a.Send, a.onStart, a.onStop)
	return a
}

func (a *CLIAdapter) onStart(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("open readline: %w", err)
	}
	a.rl = rl
	go a.readLoop()
	return nil
}

func (a *CLIAdapter) onStop(ctx context.Context) error {
	if a.rl != nil {
		return a.rl.Close()
	}
	return nil
}

func (a *CLIAdapter) readLoop() {
	for {
		line, err := a.rl.Readline()
		if err != nil {
			// readline.ErrInterrupt on ^C, io.EOF on ^D; both end the loop.
			logger.DebugC("cli", "Read loop finished")
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		a.PublishInbound(bus.InboundMessage{
			Channel:  bus.ChannelCLI,
			SenderID: cliChatID,
			ChatID:   cliChatID,
			Content:  line,
		})
	}
}

// Send writes assistant output to the terminal. Stream-end markers close
// the current line and re-show the prompt.
func (a *CLIAdapter) Send(msg bus.OutboundMessage) error {
	if msg.IsStreamEnd {
		fmt.Println()
		if a.rl != nil {
			a.rl.Refresh()
		}
		return nil
	}
	fmt.Print(msg.Content)
	return nil
}
