package deepwork

import (
	"sort"
	"sync"
)

// MemoryStore is an in-process TaskStore. It hands out copies so callers
// can only change stored state through Save calls.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]Task
	projects map[string]Project
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]Task),
		projects: make(map[string]Project),
	}
}

// Task returns a copy of the task with the given id.
func (s *MemoryStore) Task(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &task, nil
}

// ProjectTasks returns copies of every task owned by a project, ordered by
// id for determinism.
func (s *MemoryStore) ProjectTasks(projectID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, task := range s.tasks {
		if task.ProjectID == projectID {
			t := task
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveTask stores a copy of the task.
func (s *MemoryStore) SaveTask(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

// Project returns a copy of the project with the given id.
func (s *MemoryStore) Project(id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return &project, nil
}

// SaveProject stores a copy of the project.
func (s *MemoryStore) SaveProject(project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = *project
	return nil
}

var _ TaskStore = (*MemoryStore)(nil)
