package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pocketpaw/pocketpaw/pkg/deepwork"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTaskRoundTrip(t *testing.T) {
	store := openTestStore(t)

	task := &deepwork.Task{
		ID:          "t1",
		Title:       "Research",
		Description: "Look things up",
		Status:      deepwork.StatusPending,
		Priority:    deepwork.PriorityHigh,
		Tags:        []string{"research", "phase-1"},
		TaskType:    deepwork.TypeAgent,
		BlockedBy:   []string{"t0"},
		ProjectID:   "proj-1",
		CreatedAt:   time.Unix(1700000000, 0),
	}
	if err := store.SaveTask(task); err != nil {
		t.Fatal(err)
	}

	got, err := store.Task("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != task.Title || got.Status != task.Status || got.Priority != task.Priority {
		t.Errorf("got %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "research" {
		t.Errorf("tags = %v", got.Tags)
	}
	if len(got.BlockedBy) != 1 || got.BlockedBy[0] != "t0" {
		t.Errorf("blocked_by = %v", got.BlockedBy)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, task.CreatedAt)
	}
	if !got.CompletedAt.IsZero() {
		t.Errorf("completed_at = %v, want zero", got.CompletedAt)
	}
}

func TestTaskNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Task("ghost")
	if !errors.Is(err, deepwork.ErrTaskNotFound) {
		t.Errorf("error = %v, want ErrTaskNotFound", err)
	}
}

func TestSaveTaskReplaces(t *testing.T) {
	store := openTestStore(t)

	task := &deepwork.Task{ID: "t1", Title: "Before", Status: deepwork.StatusPending,
		Priority: deepwork.PriorityMedium, TaskType: deepwork.TypeAgent, ProjectID: "p"}
	if err := store.SaveTask(task); err != nil {
		t.Fatal(err)
	}
	task.Title = "After"
	task.Status = deepwork.StatusDone
	task.CompletedAt = time.Unix(1700000100, 0)
	if err := store.SaveTask(task); err != nil {
		t.Fatal(err)
	}

	got, err := store.Task("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "After" || got.Status != deepwork.StatusDone {
		t.Errorf("got %+v", got)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at not persisted")
	}
}

func TestProjectTasksOrderedAndScoped(t *testing.T) {
	store := openTestStore(t)

	for _, spec := range []struct{ id, project string }{
		{"b", "p1"}, {"a", "p1"}, {"c", "p2"},
	} {
		err := store.SaveTask(&deepwork.Task{ID: spec.id, Title: spec.id,
			Status: deepwork.StatusPending, Priority: deepwork.PriorityMedium,
			TaskType: deepwork.TypeAgent, ProjectID: spec.project})
		if err != nil {
			t.Fatal(err)
		}
	}

	tasks, err := store.ProjectTasks("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].ID != "a" || tasks[1].ID != "b" {
		t.Errorf("tasks = %v", tasks)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	store := openTestStore(t)

	project := &deepwork.Project{
		ID:          "p1",
		Title:       "Website Redesign",
		Description: "Everything",
		Status:      deepwork.ProjectActive,
		CreatedAt:   time.Unix(1700000000, 0),
	}
	if err := store.SaveProject(project); err != nil {
		t.Fatal(err)
	}

	got, err := store.Project("p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != project.Title || got.Status != deepwork.ProjectActive {
		t.Errorf("got %+v", got)
	}

	_, err = store.Project("ghost")
	if !errors.Is(err, deepwork.ErrProjectNotFound) {
		t.Errorf("error = %v, want ErrProjectNotFound", err)
	}
}

func TestSchedulerRunsAgainstSQLite(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveProject(&deepwork.Project{ID: "p1", Title: "P",
		Status: deepwork.ProjectActive}); err != nil {
		t.Fatal(err)
	}
	tasks := []*deepwork.Task{
		{ID: "t1", Title: "T1", Status: deepwork.StatusPending,
			Priority: deepwork.PriorityMedium, TaskType: deepwork.TypeAgent, ProjectID: "p1"},
		{ID: "t2", Title: "T2", Status: deepwork.StatusPending, BlockedBy: []string{"t1"},
			Priority: deepwork.PriorityMedium, TaskType: deepwork.TypeAgent, ProjectID: "p1"},
	}
	for _, task := range tasks {
		if err := store.SaveTask(task); err != nil {
			t.Fatal(err)
		}
	}

	s := deepwork.NewScheduler(store, nil, nil)
	ctx := context.Background()

	newly, err := s.OnTaskCompleted(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(newly) != 1 || newly[0].ID != "t2" {
		t.Fatalf("newly = %v, want [t2]", newly)
	}
	if _, err := s.OnTaskCompleted(ctx, "t2"); err != nil {
		t.Fatal(err)
	}

	project, err := store.Project("p1")
	if err != nil {
		t.Fatal(err)
	}
	if project.Status != deepwork.ProjectCompleted {
		t.Errorf("status = %s, want completed", project.Status)
	}
}

func TestHistoryAppendAndWindow(t *testing.T) {
	store := openTestStore(t)

	turns := []struct{ role, content string }{
		{"user", "one"}, {"assistant", "two"},
		{"user", "three"}, {"assistant", "four"},
	}
	for _, turn := range turns {
		if err := store.AppendTurn("cli:local", turn.role, turn.content); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AppendTurn("other:chat", "user", "elsewhere"); err != nil {
		t.Fatal(err)
	}

	got, err := store.History("cli:local", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("history = %d turns, want 4", len(got))
	}
	if got[0].Content != "one" || got[3].Content != "four" {
		t.Errorf("history order wrong: %v", got)
	}

	// The window keeps the most recent turns, still chronological.
	got, err = store.History("cli:local", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "three" || got[1].Content != "four" {
		t.Errorf("windowed history = %v", got)
	}
}

func TestClearHistory(t *testing.T) {
	store := openTestStore(t)

	if err := store.AppendTurn("cli:local", "user", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := store.ClearHistory("cli:local"); err != nil {
		t.Fatal(err)
	}
	got, err := store.History("cli:local", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("history after clear = %v", got)
	}
}
