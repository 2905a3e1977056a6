package cron

import (
	"context"
	"testing"
	"time"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/config"
)

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New(bus.New(), []config.CronJobConfig{
		{Name: "bad", Schedule: "not a cron expr", Message: "hi"},
	})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestNewDefaultsChannelAndChat(t *testing.T) {
	s, err := New(bus.New(), []config.CronJobConfig{
		{Name: "morning", Schedule: "0 9 * * *", Message: "plan my day"},
		{Name: "tg", Schedule: "0 18 * * *", Message: "evening recap",
			Channel: "telegram", ChatID: "12345"},
	})
	if err != nil {
		t.Fatal(err)
	}
	jobs := s.Jobs()
	if jobs[0].Message.Channel != bus.ChannelCLI || jobs[0].Message.ChatID != "local" {
		t.Errorf("defaults = %s/%s", jobs[0].Message.Channel, jobs[0].Message.ChatID)
	}
	if jobs[1].Message.Channel != bus.ChannelTelegram || jobs[1].Message.ChatID != "12345" {
		t.Errorf("explicit = %s/%s", jobs[1].Message.Channel, jobs[1].Message.ChatID)
	}
}

func TestFireDuePublishesMatchingJobs(t *testing.T) {
	b := bus.New()
	s, err := New(b, []config.CronJobConfig{
		{Name: "nine", Schedule: "0 9 * * *", Message: "nine o'clock"},
		{Name: "noon", Schedule: "0 12 * * *", Message: "midday"},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.fireDue(time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))

	if n := b.InboundPending(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
	msg, ok := b.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("consume failed")
	}
	if msg.Content != "nine o'clock" || msg.Metadata["trigger"] != "nine" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.SenderID != "cron" {
		t.Errorf("sender = %q, want cron", msg.SenderID)
	}
}

func TestFireDueNoMatch(t *testing.T) {
	b := bus.New()
	s, err := New(b, []config.CronJobConfig{
		{Name: "nine", Schedule: "0 9 * * *", Message: "nine o'clock"},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.fireDue(time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC))
	if n := b.InboundPending(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}
