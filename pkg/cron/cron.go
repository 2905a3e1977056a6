// Package cron publishes configured messages as synthetic inbound input
// when their schedule is due, letting the assistant act without being
// prompted.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/config"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

const tickInterval = time.Minute

// Job is one validated trigger.
type Job struct {
	Name     string
	Schedule string
	Message  bus.InboundMessage
}

// Service checks job schedules once a minute and publishes due messages.
type Service struct {
	bus  *bus.MessageBus
	gron *gronx.Gronx
	jobs []Job
}

// New builds a service from the configured jobs. Jobs with an invalid cron
// expression are rejected.
func New(b *bus.MessageBus, jobs []config.CronJobConfig) (*Service, error) {
	s := &Service{bus: b, gron: gronx.New()}
	for _, job := range jobs {
		if !s.gron.IsValid(job.Schedule) {
			return nil, fmt.Errorf("cron job %q: invalid schedule %q", job.Name, job.Schedule)
		}
		channel := bus.Channel(job.Channel)
		if !channel.Valid() {
			channel = bus.ChannelCLI
		}
		chatID := job.ChatID
		if chatID == "" {
			chatID = "local"
		}
		s.jobs = append(s.jobs, Job{
			Name:     job.Name,
			Schedule: job.Schedule,
			Message: bus.InboundMessage{
				Channel:  channel,
				SenderID: "cron",
				ChatID:   chatID,
				Content:  job.Message,
				Metadata: map[string]string{"trigger": job.Name},
			},
		})
	}
	return s, nil
}

// Jobs returns the validated trigger set.
func (s *Service) Jobs() []Job { return s.jobs }

// Run checks schedules every minute until ctx is cancelled. It returns
// immediately when no jobs are configured.
func (s *Service) Run(ctx context.Context) {
	if len(s.jobs) == 0 {
		return
	}
	logger.InfoCF("cron", "Scheduler started", map[string]interface{}{"jobs": len(s.jobs)})

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoC("cron", "Scheduler stopped")
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue publishes every job whose schedule matches the given instant.
func (s *Service) fireDue(now time.Time) {
	for _, job := range s.jobs {
		due, err := s.gron.IsDue(job.Schedule, now)
		if err != nil {
			logger.WarnCF("cron", "Schedule check failed", map[string]interface{}{
				"job":   job.Name,
				"error": err.Error(),
			})
			continue
		}
		if !due {
			continue
		}
		logger.InfoCF("cron", "Trigger fired", map[string]interface{}{"job": job.Name})
		s.bus.PublishInbound(job.Message)
	}
}
