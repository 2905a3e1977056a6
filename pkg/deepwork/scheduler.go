package deepwork

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// AgentHook hands an agent-typed task to an external execution engine.
// The engine's completion must eventually call back into OnTaskCompleted.
type AgentHook func(ctx context.Context, task *Task)

// Scheduler drives dependency-ordered task execution. A single mutex makes
// "mark done, recompute ready, dispatch" one atomic unit relative to other
// completions on the same store, so two tasks finishing near-simultaneously
// cannot both miss a task that needed both of them.
type Scheduler struct {
	mu        sync.Mutex
	store     TaskStore
	agentHook AgentHook
	human     *HumanTaskRouter
}

// NewScheduler creates a scheduler over a task store. agentHook and human
// may be nil; dispatch to a missing collaborator is logged and skipped.
func NewScheduler(store TaskStore, agentHook AgentHook, human *HumanTaskRouter) *Scheduler {
	return &Scheduler{store: store, agentHook: agentHook, human: human}
}

// Validate runs graph validation over a project's tasks. A non-empty
// result is fatal to scheduling that project until corrected.
func (s *Scheduler) Validate(projectID string) ([]GraphError, error) {
	tasks, err := s.store.ProjectTasks(projectID)
	if err != nil {
		return nil, fmt.Errorf("load project tasks: %w", err)
	}
	return ValidateGraph(tasks), nil
}

// Ready returns the project's currently ready tasks.
func (s *Scheduler) Ready(projectID string) ([]*Task, error) {
	tasks, err := s.store.ProjectTasks(projectID)
	if err != nil {
		return nil, fmt.Errorf("load project tasks: %w", err)
	}
	return ReadyTasks(tasks), nil
}

// Start dispatches a project's initial ready set. Called once after a plan
// is approved.
func (s *Scheduler) Start(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.store.ProjectTasks(projectID)
	if err != nil {
		return fmt.Errorf("load project tasks: %w", err)
	}
	if errs := ValidateGraph(tasks); len(errs) > 0 {
		return fmt.Errorf("dependency graph invalid: %v", errs[0])
	}

	for _, task := range ReadyTasks(tasks) {
		s.dispatch(ctx, task)
	}
	return nil
}

// OnTaskCompleted transitions the task to done and dispatches exactly the
// tasks that became ready as a direct result. If the completion finishes
// its project, the project-completed notification fires exactly once.
func (s *Scheduler) OnTaskCompleted(ctx context.Context, taskID string) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.store.Task(taskID)
	if err != nil {
		return nil, fmt.Errorf("complete task %s: %w", taskID, err)
	}

	tasks, err := s.store.ProjectTasks(task.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project tasks: %w", err)
	}

	readyBefore := idSet(ReadyTasks(tasks))

	task.Status = StatusDone
	task.CompletedAt = time.Now().UTC()
	if err := s.store.SaveTask(task); err != nil {
		return nil, fmt.Errorf("save task %s: %w", taskID, err)
	}
	for i, t := range tasks {
		if t.ID == taskID {
			tasks[i] = task
		}
	}

	var newlyReady []*Task
	for _, t := range ReadyTasks(tasks) {
		if !readyBefore[t.ID] && t.ID != taskID {
			newlyReady = append(newlyReady, t)
		}
	}

	logger.InfoCF("scheduler", "Task completed", map[string]interface{}{
		"task_id":     taskID,
		"title":       task.Title,
		"newly_ready": len(newlyReady),
	})

	for _, t := range newlyReady {
		s.dispatch(ctx, t)
	}

	s.checkProjectCompletion(task.ProjectID, tasks)
	return newlyReady, nil
}

// MarkRunning records that an external executor picked up a task.
func (s *Scheduler) MarkRunning(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.store.Task(taskID)
	if err != nil {
		return err
	}
	task.Status = StatusRunning
	return s.store.SaveTask(task)
}

// dispatch routes one ready task by its type. Caller holds s.mu.
func (s *Scheduler) dispatch(ctx context.Context, task *Task) {
	// Guard against double dispatch when a task was already picked up.
	if task.Status != StatusPending {
		logger.DebugCF("scheduler", "Skipping dispatch", map[string]interface{}{
			"task_id": task.ID,
			"status":  string(task.Status),
		})
		return
	}

	switch task.TaskType {
	case TypeAgent:
		if s.agentHook == nil {
			logger.WarnCF("scheduler", "Agent task but no execution hook", map[string]interface{}{
				"task_id": task.ID, "title": task.Title,
			})
			return
		}
		logger.InfoCF("scheduler", "Dispatching agent task", map[string]interface{}{
			"task_id": task.ID, "title": task.Title,
		})
		s.agentHook(ctx, task)

	case TypeHuman:
		if s.human == nil {
			logger.WarnCF("scheduler", "Human task but no router", map[string]interface{}{
				"task_id": task.ID, "title": task.Title,
			})
			return
		}
		s.human.NotifyHumanTask(task)

	case TypeReview:
		if s.human == nil {
			logger.WarnCF("scheduler", "Review task but no router", map[string]interface{}{
				"task_id": task.ID, "title": task.Title,
			})
			return
		}
		s.human.NotifyReviewTask(task)

	default:
		logger.WarnCF("scheduler", "Unknown task type", map[string]interface{}{
			"task_id": task.ID, "type": string(task.TaskType),
		})
	}
}

// checkProjectCompletion marks the project completed and notifies once all
// tasks are done. Caller holds s.mu; the status check makes the
// notification fire exactly once per completion.
func (s *Scheduler) checkProjectCompletion(projectID string, tasks []*Task) {
	if projectID == "" || len(tasks) == 0 {
		return
	}
	for _, t := range tasks {
		if t.Status != StatusDone {
			return
		}
	}

	project, err := s.store.Project(projectID)
	if err != nil {
		logger.WarnCF("scheduler", "Project lookup failed on completion", map[string]interface{}{
			"project_id": projectID, "error": err.Error(),
		})
		return
	}
	if project.Status == ProjectCompleted {
		return
	}

	project.Status = ProjectCompleted
	project.CompletedAt = time.Now().UTC()
	if err := s.store.SaveProject(project); err != nil {
		logger.ErrorCF("scheduler", "Failed to save completed project", map[string]interface{}{
			"project_id": projectID, "error": err.Error(),
		})
		return
	}

	logger.InfoCF("scheduler", "Project completed", map[string]interface{}{
		"project_id": projectID, "title": project.Title,
	})
	if s.human != nil {
		s.human.NotifyProjectCompleted(project, tasks)
	}
}

func idSet(tasks []*Task) map[string]bool {
	out := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		out[t.ID] = true
	}
	return out
}
