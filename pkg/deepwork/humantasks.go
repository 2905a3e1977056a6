package deepwork

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// descriptionExcerpt bounds the task description included in notifications.
const descriptionExcerpt = 300

// broadcastChatID is the fixed chat identifier for scheduler notifications.
const broadcastChatID = "broadcast"

// HumanTaskRouter formats scheduler dispatch events into channel-agnostic
// notifications and broadcasts them on the SYSTEM channel so every active
// adapter relays them. Publish failures are logged, never raised back to
// the scheduler.
type HumanTaskRouter struct {
	bus *bus.MessageBus
}

// NewHumanTaskRouter creates a router over a bus. A nil bus degrades to
// log-only operation.
func NewHumanTaskRouter(b *bus.MessageBus) *HumanTaskRouter {
	return &HumanTaskRouter{bus: b}
}

// NotifyHumanTask pushes a human-required task to all active channels.
func (r *HumanTaskRouter) NotifyHumanTask(task *Task) {
	r.publish(r.formatTaskNotification(task), map[string]string{
		"type":       "human_task",
		"task_id":    task.ID,
		"project_id": task.ProjectID,
	})
	logger.InfoCF("humantasks", "Human task routed", map[string]interface{}{"title": task.Title})
}

// NotifyReviewTask tells the user an agent task is ready for review.
func (r *HumanTaskRouter) NotifyReviewTask(task *Task) {
	content := fmt.Sprintf(
		"**Task ready for review**\n\n**%s**\nAn agent completed this task. Please review in the dashboard.",
		task.Title,
	)
	r.publish(content, map[string]string{
		"type":       "review_task",
		"task_id":    task.ID,
		"project_id": task.ProjectID,
	})
	logger.InfoCF("humantasks", "Review task routed", map[string]interface{}{"title": task.Title})
}

// NotifyPlanReady tells the user a project plan awaits approval.
func (r *HumanTaskRouter) NotifyPlanReady(project *Project, taskCount, estimatedMinutes int) {
	content := fmt.Sprintf(
		"**Deep Work plan ready for review**\n\nProject: **%s**\nTasks: %d\nEstimated time: ~%d minutes\n\nReview and approve in the dashboard.",
		project.Title, taskCount, estimatedMinutes,
	)
	r.publish(content, map[string]string{
		"type":       "plan_ready",
		"project_id": project.ID,
	})
	logger.InfoCF("humantasks", "Plan ready notification sent", map[string]interface{}{"title": project.Title})
}

// NotifyProjectCompleted tells the user all project tasks are done.
func (r *HumanTaskRouter) NotifyProjectCompleted(project *Project, tasks []*Task) {
	completed := 0
	for _, t := range tasks {
		if t.Status == StatusDone {
			completed++
		}
	}
	content := fmt.Sprintf(
		"**Deep Work project completed!**\n\nProject: **%s**\nTasks completed: %d/%d\n\nView deliverables in the dashboard.",
		project.Title, completed, len(tasks),
	)
	r.publish(content, map[string]string{
		"type":       "project_completed",
		"project_id": project.ID,
	})
	logger.InfoCF("humantasks", "Project completed notification sent", map[string]interface{}{"title": project.Title})
}

// formatTaskNotification renders a task as a channel-friendly message:
// title, bounded description excerpt, priority, tags.
func (r *HumanTaskRouter) formatTaskNotification(task *Task) string {
	lines := []string{"**Task needs your help**", "", "**" + task.Title + "**"}

	if task.Description != "" {
		desc := task.Description
		if len(desc) > descriptionExcerpt {
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := descriptionExcerpt
			for cut > 0 && !utf8.RuneStart(desc[cut]) {
				cut--
			}
			desc = desc[:cut] + "..."
		}
		lines = append(lines, desc)
	}
	lines = append(lines, "", "Priority: "+string(task.Priority))
	if len(task.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(task.Tags, ", "))
	}
	lines = append(lines, "", "Mark complete in the dashboard when done.")
	return strings.Join(lines, "\n")
}

// publish broadcasts a notification on the SYSTEM channel. Failure to
// publish must never propagate to the scheduler.
func (r *HumanTaskRouter) publish(content string, metadata map[string]string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WarnCF("humantasks", "Failed to publish notification", map[string]interface{}{
				"panic": fmt.Sprintf("%v", rec),
			})
		}
	}()

	if r.bus == nil {
		logger.WarnC("humantasks", "No message bus configured, notification dropped")
		return
	}
	r.bus.BroadcastOutbound(bus.OutboundMessage{
		Channel:  bus.ChannelSystem,
		ChatID:   broadcastChatID,
		Content:  content,
		Metadata: metadata,
	})
}
