// Command pocketpaw runs the assistant: the message bus, channel adapters,
// agent loop, deep work scheduler, and cron triggers, wired together from
// one config file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketpaw/pocketpaw/pkg/agents"
	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/channels"
	"github.com/pocketpaw/pocketpaw/pkg/config"
	"github.com/pocketpaw/pocketpaw/pkg/cron"
	"github.com/pocketpaw/pocketpaw/pkg/deepwork"
	"github.com/pocketpaw/pocketpaw/pkg/infrastructure/persistence"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
	"github.com/pocketpaw/pocketpaw/pkg/providers"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logger.ErrorCF("main", "Fatal", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Settings) error {
	b := bus.New()
	defer b.Close()

	store, err := persistence.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := agents.NewRegistry()
	providers.Register(registry, cfg)
	router := agents.NewRouter(registry, cfg.AgentBackend)

	loop := agents.NewLoop(b, router, cfg.SystemPrompt, cfg.MaxConcurrentSessions)
	loop.SetHistory(store)

	humanRouter := deepwork.NewHumanTaskRouter(b)
	scheduler := deepwork.NewScheduler(store, agentTaskHook(b), humanRouter)
	planner := deepwork.NewPlanner(store, humanRouter)
	wireDeepWork(ctx, b, scheduler, planner, store)

	manager := channels.NewManager(b, cfg)
	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	defer manager.StopAll(context.Background())

	cronService, err := cron.New(b, cfg.CronJobs)
	if err != nil {
		return err
	}
	go cronService.Run(ctx)

	logger.InfoCF("main", "pocketpaw started", map[string]interface{}{
		"backend":  cfg.AgentBackend,
		"channels": manager.Started(),
	})

	loop.Run(ctx)
	return nil
}

// agentTaskHook feeds ready agent tasks back into the bus as synthetic
// inbound messages, so the agent loop picks them up like any other input.
// The loop reports each finished task back as a deepwork.task_completed
// system event, closing the dispatch cycle.
func agentTaskHook(b *bus.MessageBus) deepwork.AgentHook {
	return func(ctx context.Context, task *deepwork.Task) {
		b.PublishInbound(bus.InboundMessage{
			Channel:  bus.ChannelSystem,
			SenderID: "scheduler",
			ChatID:   "broadcast",
			Content:  fmt.Sprintf("Work on task %q: %s", task.Title, task.Description),
			Metadata: map[string]string{
				"type":    "deepwork_task",
				"task_id": task.ID,
			},
		})
	}
}

// wireDeepWork drives the deep work pipeline from bus system events: plan
// submissions, project starts, and task completions reported by agents or
// humans (the agent loop publishes completions itself; external executors
// reach the bus through the websocket adapter's system_event frames).
func wireDeepWork(ctx context.Context, b *bus.MessageBus, scheduler *deepwork.Scheduler, planner *deepwork.Planner, store deepwork.TaskStore) {
	b.SubscribeSystem("deepwork", func(event bus.SystemEvent) {
		data, ok := event.Data.(map[string]string)
		if !ok {
			return
		}
		switch event.Type {
		case "deepwork.plan_submitted":
			var specs []deepwork.TaskSpec
			if err := json.Unmarshal([]byte(data["specs"]), &specs); err != nil {
				logger.WarnCF("deepwork", "Plan specs unreadable", map[string]interface{}{"error": err.Error()})
				return
			}
			if _, _, err := planner.Materialize(data["title"], data["description"], specs); err != nil {
				logger.WarnCF("deepwork", "Plan rejected", map[string]interface{}{"error": err.Error()})
			}
		case "deepwork.project_started":
			if err := activateProject(store, data["project_id"]); err != nil {
				logger.WarnCF("deepwork", "Project activation failed", map[string]interface{}{
					"project_id": data["project_id"],
					"error":      err.Error(),
				})
				return
			}
			if err := scheduler.Start(ctx, data["project_id"]); err != nil {
				logger.WarnCF("deepwork", "Project start failed", map[string]interface{}{
					"project_id": data["project_id"],
					"error":      err.Error(),
				})
			}
		case "deepwork.task_completed":
			if _, err := scheduler.OnTaskCompleted(ctx, data["task_id"]); err != nil {
				logger.WarnCF("deepwork", "Completion failed", map[string]interface{}{
					"task_id": data["task_id"],
					"error":   err.Error(),
				})
			}
		}
	})
}

// activateProject flips an approved plan from planning to active before its
// first dispatch. Already-active projects pass through unchanged.
func activateProject(store deepwork.TaskStore, projectID string) error {
	project, err := store.Project(projectID)
	if err != nil {
		return err
	}
	if project.Status == deepwork.ProjectPlanning {
		project.Status = deepwork.ProjectActive
		return store.SaveProject(project)
	}
	return nil
}
