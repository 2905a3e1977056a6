package deepwork

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// TaskSpec is a planned task before materialization. Keys are
// plan-local: BlockedByKeys reference other specs, not stored task ids.
type TaskSpec struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	TaskType         TaskType `json:"task_type"`
	Priority         Priority `json:"priority"`
	Tags             []string `json:"tags,omitempty"`
	BlockedByKeys    []string `json:"blocked_by_keys,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes,omitempty"`
}

// Planner turns a validated plan into stored projects and tasks.
type Planner struct {
	store TaskStore
	human *HumanTaskRouter
}

// NewPlanner creates a planner. human may be nil to skip notifications.
func NewPlanner(store TaskStore, human *HumanTaskRouter) *Planner {
	return &Planner{store: store, human: human}
}

// ValidateSpecs runs graph validation over a plan's specs before any state
// is created. Specs are checked by key, the same way stored tasks are
// checked by id.
func ValidateSpecs(specs []TaskSpec) []GraphError {
	tasks := make([]*Task, len(specs))
	for i, spec := range specs {
		tasks[i] = &Task{ID: spec.Key, BlockedBy: spec.BlockedByKeys}
	}
	return ValidateGraph(tasks)
}

// Materialize creates a project and its tasks from a plan. The spec graph
// is validated first; on any finding, nothing is created and all findings
// are returned. Spec keys are remapped to generated task ids. A plan-ready
// notification is sent on success.
func (p *Planner) Materialize(title, description string, specs []TaskSpec) (*Project, []*Task, error) {
	if errs := ValidateSpecs(specs); len(errs) > 0 {
		return nil, nil, fmt.Errorf("plan graph invalid (%d findings): %w", len(errs), errs[0])
	}

	project := &Project{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      ProjectPlanning,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.store.SaveProject(project); err != nil {
		return nil, nil, fmt.Errorf("save project: %w", err)
	}

	idByKey := make(map[string]string, len(specs))
	for _, spec := range specs {
		idByKey[spec.Key] = uuid.NewString()
	}

	estimated := 0
	tasks := make([]*Task, 0, len(specs))
	for _, spec := range specs {
		blockedBy := make([]string, 0, len(spec.BlockedByKeys))
		for _, key := range spec.BlockedByKeys {
			blockedBy = append(blockedBy, idByKey[key])
		}

		taskType := spec.TaskType
		if taskType == "" {
			taskType = TypeAgent
		}
		priority := spec.Priority
		if priority == "" {
			priority = PriorityMedium
		}

		task := &Task{
			ID:          idByKey[spec.Key],
			Title:       spec.Title,
			Description: spec.Description,
			Status:      StatusPending,
			Priority:    priority,
			Tags:        spec.Tags,
			TaskType:    taskType,
			BlockedBy:   blockedBy,
			ProjectID:   project.ID,
			CreatedAt:   time.Now().UTC(),
		}
		if err := p.store.SaveTask(task); err != nil {
			return nil, nil, fmt.Errorf("save task %s: %w", spec.Key, err)
		}
		tasks = append(tasks, task)
		estimated += spec.EstimatedMinutes
	}

	logger.InfoCF("planner", "Plan materialized", map[string]interface{}{
		"project_id": project.ID,
		"tasks":      len(tasks),
	})
	if p.human != nil {
		p.human.NotifyPlanReady(project, len(tasks), estimated)
	}
	return project, tasks, nil
}
