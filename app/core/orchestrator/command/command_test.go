package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"auratask/app/core/orchestrator/taskstore"
)

type fakeLister struct {
	items []taskstore.Task
	err   error
	limit int
}

func (f *fakeLister) ListTasks(ctx context.Context, userID string, limit int) ([]taskstore.Task, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.items) {
		limit = len(f.items)
	}
	return f.items[:limit], nil
}

type fakeConversation struct {
	pending bool
}

func (f *fakeConversation) CancelPending() bool {
	had := f.pending
	f.pending = false
	return had
}

func sampleTask(title string) taskstore.Task {
	return taskstore.Task{ID: "task-1", UserID: "u-1", Title: title, Date: "2026-08-29", Time: "2pm"}
}

func TestExecuteHelp(t *testing.T) {
	exec := NewExecutor(&fakeLister{})
	out, handled, err := exec.Execute(context.Background(), "u-1", "/help", nil)
	if err != nil || !handled {
		t.Fatalf("unexpected result: handled=%v err=%v", handled, err)
	}
	if !strings.Contains(out, "/tasks") || !strings.Contains(out, "/cancel") {
		t.Fatalf("help text missing commands:\n%s", out)
	}
}

func TestExecuteTasksDefaultLimit(t *testing.T) {
	lister := &fakeLister{items: []taskstore.Task{sampleTask("Call mom")}}
	exec := NewExecutor(lister)

	out, handled, err := exec.Execute(context.Background(), "u-1", "/tasks", nil)
	if err != nil || !handled {
		t.Fatalf("unexpected result: handled=%v err=%v", handled, err)
	}
	if lister.limit != 10 {
		t.Fatalf("unexpected default limit: %d", lister.limit)
	}
	if !strings.Contains(out, "Call mom") {
		t.Fatalf("listing missing task:\n%s", out)
	}
}

func TestExecuteTasksCustomLimit(t *testing.T) {
	lister := &fakeLister{}
	exec := NewExecutor(lister)

	if _, _, err := exec.Execute(context.Background(), "u-1", "/tasks 3", nil); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if lister.limit != 3 {
		t.Fatalf("unexpected limit: %d", lister.limit)
	}
}

func TestExecuteTasksEmpty(t *testing.T) {
	exec := NewExecutor(&fakeLister{})
	out, _, err := exec.Execute(context.Background(), "u-1", "/tasks", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(out, "no tasks yet") {
		t.Fatalf("unexpected empty listing: %s", out)
	}
}

func TestExecuteTasksListerError(t *testing.T) {
	exec := NewExecutor(&fakeLister{err: errors.New("db down")})
	_, handled, err := exec.Execute(context.Background(), "u-1", "/tasks", nil)
	if !handled {
		t.Fatal("errors from a known command are still handled")
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExecuteCancel(t *testing.T) {
	exec := NewExecutor(&fakeLister{})

	out, handled, err := exec.Execute(context.Background(), "u-1", "/cancel", &fakeConversation{pending: true})
	if err != nil || !handled {
		t.Fatalf("unexpected result: handled=%v err=%v", handled, err)
	}
	if out != "Okay, I've cancelled that task creation." {
		t.Fatalf("unexpected cancel text: %s", out)
	}

	out, _, err = exec.Execute(context.Background(), "u-1", "/cancel", &fakeConversation{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out != "There is no task waiting for confirmation." {
		t.Fatalf("unexpected no-pending text: %s", out)
	}
}

func TestExecuteUnknownCommandNotHandled(t *testing.T) {
	exec := NewExecutor(&fakeLister{})
	_, handled, err := exec.Execute(context.Background(), "u-1", "/unknown", nil)
	if handled || err != nil {
		t.Fatalf("unknown command should flow to the conversation: handled=%v err=%v", handled, err)
	}
}

func TestFormatTask(t *testing.T) {
	task := taskstore.Task{
		Title:     "Write report",
		Date:      "2026-09-01",
		Time:      "morning",
		Duration:  "3 hours",
		Priority:  true,
		Project:   "work",
		Completed: true,
	}
	line := FormatTask(task)
	for _, want := range []string{"[x]", "Write report", "2026-09-01", "at morning", "for 3 hours", "(priority)", "#work"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line missing %q: %s", want, line)
		}
	}

	minimal := FormatTask(sampleTask("Call mom"))
	if strings.Contains(minimal, "for ") || strings.Contains(minimal, "#") {
		t.Fatalf("minimal task rendered optional fields: %s", minimal)
	}
	if !strings.HasPrefix(minimal, "[ ] ") {
		t.Fatalf("unexpected prefix: %s", minimal)
	}
}
