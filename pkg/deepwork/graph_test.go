package deepwork

import (
	"testing"
)

func task(id string, status TaskStatus, blockedBy ...string) *Task {
	return &Task{
		ID:        id,
		Title:     "Task " + id,
		Status:    status,
		Priority:  PriorityMedium,
		TaskType:  TypeAgent,
		BlockedBy: blockedBy,
		ProjectID: "proj-1",
	}
}

func TestValidateGraphAcceptsValidDAG(t *testing.T) {
	tasks := []*Task{
		task("t1", StatusPending),
		task("t2", StatusPending, "t1"),
		task("t3", StatusPending, "t1", "t2"),
		task("t4", StatusPending, "t3"),
	}
	if errs := ValidateGraph(tasks); len(errs) != 0 {
		t.Errorf("valid DAG produced errors: %v", errs)
	}
}

func TestValidateGraphEmptySet(t *testing.T) {
	if errs := ValidateGraph(nil); errs != nil {
		t.Errorf("empty set produced errors: %v", errs)
	}
}

func TestValidateGraphReportsTwoNodeCycle(t *testing.T) {
	tasks := []*Task{
		task("t1", StatusPending, "t2"),
		task("t2", StatusPending, "t1"),
	}
	errs := ValidateGraph(tasks)
	if len(errs) != 1 {
		t.Fatalf("errors = %d, want exactly 1: %v", len(errs), errs)
	}
	if errs[0].Kind != GraphErrorCycle {
		t.Fatalf("kind = %s, want cycle", errs[0].Kind)
	}
	names := map[string]bool{}
	for _, id := range errs[0].Cycle {
		names[id] = true
	}
	if !names["t1"] || !names["t2"] {
		t.Errorf("cycle error must name both tasks, got %v", errs[0].Cycle)
	}
}

func TestValidateGraphSelfCycle(t *testing.T) {
	tasks := []*Task{task("t1", StatusPending, "t1")}
	errs := ValidateGraph(tasks)
	if len(errs) != 1 || errs[0].Kind != GraphErrorCycle {
		t.Fatalf("errors = %v, want one cycle", errs)
	}
	if len(errs[0].Cycle) != 1 || errs[0].Cycle[0] != "t1" {
		t.Errorf("cycle = %v, want [t1]", errs[0].Cycle)
	}
}

func TestValidateGraphReportsEveryFinding(t *testing.T) {
	// Two independent problems: a cycle between a<->b and two dangling
	// references from c. All must be reported, not just the first.
	tasks := []*Task{
		task("a", StatusPending, "b"),
		task("b", StatusPending, "a"),
		task("c", StatusPending, "ghost1", "ghost2"),
	}
	errs := ValidateGraph(tasks)

	var cycles, missing int
	for _, e := range errs {
		switch e.Kind {
		case GraphErrorCycle:
			cycles++
		case GraphErrorMissingRef:
			missing++
			if e.TaskID != "c" {
				t.Errorf("missing ref reported on %q, want c", e.TaskID)
			}
		}
	}
	if cycles != 1 {
		t.Errorf("cycles = %d, want 1", cycles)
	}
	if missing != 2 {
		t.Errorf("missing refs = %d, want 2", missing)
	}
}

func TestValidateGraphDeterministic(t *testing.T) {
	build := func() []*Task {
		return []*Task{
			task("z", StatusPending, "y"),
			task("y", StatusPending, "z"),
			task("m", StatusPending, "nope"),
		}
	}
	first := ValidateGraph(build())
	for i := 0; i < 10; i++ {
		again := ValidateGraph(build())
		if len(again) != len(first) {
			t.Fatalf("run %d: %d errors, first run had %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].Error() != first[j].Error() {
				t.Fatalf("run %d: error %d = %q, want %q", i, j, again[j].Error(), first[j].Error())
			}
		}
	}
}

func TestReadyTasksBasics(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*Task
		want  []string
	}{
		{
			name: "all blockers done",
			tasks: []*Task{
				task("t1", StatusDone),
				task("t2", StatusDone),
				task("t3", StatusPending, "t1", "t2"),
			},
			want: []string{"t3"},
		},
		{
			name: "incomplete blocker excludes",
			tasks: []*Task{
				task("t1", StatusDone),
				task("t2", StatusRunning),
				task("t3", StatusPending, "t1", "t2"),
			},
			want: nil,
		},
		{
			name: "running tasks excluded",
			tasks: []*Task{
				task("t1", StatusRunning),
				task("t2", StatusPending),
			},
			want: []string{"t2"},
		},
		{
			name: "no blockers ready",
			tasks: []*Task{
				task("t1", StatusPending),
				task("t2", StatusPending),
			},
			want: []string{"t1", "t2"},
		},
		{
			name: "done tasks never ready",
			tasks: []*Task{
				task("t1", StatusDone),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadyTasks(tt.tasks)
			if len(got) != len(tt.want) {
				t.Fatalf("ready = %v, want %v", ids(got), tt.want)
			}
			for i, want := range tt.want {
				if got[i].ID != want {
					t.Fatalf("ready = %v, want %v", ids(got), tt.want)
				}
			}
		})
	}
}

func TestReadyTasksOrderIndependent(t *testing.T) {
	a := task("a", StatusPending)
	b := task("b", StatusDone)
	c := task("c", StatusPending, "b")
	d := task("d", StatusPending, "a")

	permutations := [][]*Task{
		{a, b, c, d},
		{d, c, b, a},
		{b, d, a, c},
	}
	want := []string{"a", "c"}
	for i, perm := range permutations {
		got := ids(ReadyTasks(perm))
		if len(got) != len(want) {
			t.Fatalf("perm %d: ready = %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("perm %d: ready = %v, want %v", i, got, want)
			}
		}
	}
}

func TestExecutionOrderLevels(t *testing.T) {
	tasks := []*Task{
		task("t1", StatusPending),
		task("t2", StatusPending, "t1"),
		task("t3", StatusPending, "t1", "t2"),
		task("t4", StatusPending),
	}
	levels := ExecutionOrder(tasks)

	want := [][]string{{"t1", "t4"}, {"t2"}, {"t3"}}
	if len(levels) != len(want) {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
	for i := range want {
		if len(levels[i]) != len(want[i]) {
			t.Fatalf("level %d = %v, want %v", i, levels[i], want[i])
		}
		for j := range want[i] {
			if levels[i][j] != want[i][j] {
				t.Fatalf("level %d = %v, want %v", i, levels[i], want[i])
			}
		}
	}
}

func TestExecutionOrderNeverRunsTaskBeforeBlocker(t *testing.T) {
	tasks := []*Task{
		task("a", StatusPending),
		task("b", StatusPending, "a"),
		task("c", StatusPending, "a"),
		task("d", StatusPending, "b", "c"),
		task("e", StatusPending, "d"),
	}
	levels := ExecutionOrder(tasks)

	levelOf := map[string]int{}
	for i, level := range levels {
		for _, id := range level {
			levelOf[id] = i
		}
	}
	for _, task := range tasks {
		for _, dep := range task.BlockedBy {
			if levelOf[dep] >= levelOf[task.ID] {
				t.Errorf("task %s (level %d) not after blocker %s (level %d)",
					task.ID, levelOf[task.ID], dep, levelOf[dep])
			}
		}
	}
}

func TestEffectiveStatusDerivesBlocked(t *testing.T) {
	tasks := []*Task{
		task("t1", StatusPending),
		task("t2", StatusPending, "t1"),
	}
	if got := EffectiveStatus(tasks[1], tasks); got != StatusBlocked {
		t.Errorf("status = %s, want blocked", got)
	}
	if got := EffectiveStatus(tasks[0], tasks); got != StatusPending {
		t.Errorf("status = %s, want pending", got)
	}

	tasks[0].Status = StatusDone
	if got := EffectiveStatus(tasks[1], tasks); got != StatusPending {
		t.Errorf("status after blocker done = %s, want pending", got)
	}
}

func ids(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
