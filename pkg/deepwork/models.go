// Package deepwork implements multi-task project execution: the dependency
// scheduler, graph validation, the human task router, and plan
// materialization. Tasks form a DAG via blocked_by edges; the scheduler
// computes ready tasks and dispatches them to agents, humans, or reviewers
// as their blockers complete.
package deepwork

import (
	"errors"
	"time"
)

// TaskStatus is the lifecycle state of a task. Only the scheduler
// transitions status; tasks are never deleted, only transitioned.
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusRunning TaskStatus = "running"
	StatusDone    TaskStatus = "done"

	// StatusBlocked is presentational: a pending task whose blockers are
	// not all done. It is derived via EffectiveStatus, never stored.
	StatusBlocked TaskStatus = "blocked"
)

// TaskType selects the dispatch path when a task becomes ready.
type TaskType string

const (
	TypeAgent  TaskType = "agent"  // handed to the agent-execution hook
	TypeHuman  TaskType = "human"  // routed to the human task router
	TypeReview TaskType = "review" // routed for human review
)

// Priority orders tasks for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Task is a unit of project work. BlockedBy lists the ids of tasks that
// must reach StatusDone before this one becomes ready.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags,omitempty"`
	TaskType    TaskType   `json:"task_type"`
	BlockedBy   []string   `json:"blocked_by,omitempty"`
	ProjectID   string     `json:"project_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

// Project owns a set of tasks. A project is completed iff every owned task
// has status done.
type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}

// Store errors. Absence of a referenced task or project is reported, never
// silently ignored.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrProjectNotFound = errors.New("project not found")
)

// TaskStore is the persistence collaborator the scheduler drives. The
// scheduler itself keeps no durable state.
type TaskStore interface {
	Task(id string) (*Task, error)
	ProjectTasks(projectID string) ([]*Task, error)
	SaveTask(task *Task) error
	Project(id string) (*Project, error)
	SaveProject(project *Project) error
}

// EffectiveStatus maps a stored status to its presentational one: a
// pending task with unfinished blockers shows as blocked.
func EffectiveStatus(task *Task, all []*Task) TaskStatus {
	if task.Status != StatusPending {
		return task.Status
	}
	done := make(map[string]bool, len(all))
	for _, t := range all {
		if t.Status == StatusDone {
			done[t.ID] = true
		}
	}
	for _, dep := range task.BlockedBy {
		if !done[dep] {
			return StatusBlocked
		}
	}
	return StatusPending
}
