package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"auratask/app/core/orchestrator/taskstore"
)

const defaultListLimit = 10

// TaskLister is the slice of the task store the commands need.
type TaskLister interface {
	ListTasks(ctx context.Context, userID string, limit int) ([]taskstore.Task, error)
}

// Conversation is the slice of the state machine the commands need.
type Conversation interface {
	CancelPending() bool
}

// Executor handles slash commands before any model dispatch. A handled
// command never reaches the completion endpoint.
type Executor struct {
	lister TaskLister
}

func NewExecutor(lister TaskLister) *Executor {
	return &Executor{lister: lister}
}

// Execute runs input as a slash command. handled is false when the input is
// not a known command and should flow to the conversation machine instead.
func (e *Executor) Execute(ctx context.Context, userID string, input string, conv Conversation) (out string, handled bool, err error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return "", false, nil
	}

	switch fields[0] {
	case "/help":
		return helpText(), true, nil
	case "/tasks":
		limit := defaultListLimit
		if len(fields) > 1 {
			if n, convErr := strconv.Atoi(fields[1]); convErr == nil && n > 0 {
				limit = n
			}
		}
		listing, listErr := e.listTasks(ctx, userID, limit)
		if listErr != nil {
			return "", true, listErr
		}
		return listing, true, nil
	case "/cancel":
		if conv != nil && conv.CancelPending() {
			return "Okay, I've cancelled that task creation.", true, nil
		}
		return "There is no task waiting for confirmation.", true, nil
	default:
		return "", false, nil
	}
}

func (e *Executor) listTasks(ctx context.Context, userID string, limit int) (string, error) {
	items, err := e.lister.ListTasks(ctx, userID, limit)
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	if len(items) == 0 {
		return "You have no tasks yet. Create one with the chat!", nil
	}

	var b strings.Builder
	b.WriteString("Your tasks:\n")
	for _, t := range items {
		b.WriteString(FormatTask(t))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// FormatTask renders one task as a single list line.
func FormatTask(t taskstore.Task) string {
	var b strings.Builder
	if t.Completed {
		b.WriteString("[x] ")
	} else {
		b.WriteString("[ ] ")
	}
	b.WriteString(t.Title)
	b.WriteString(" - ")
	b.WriteString(t.Date)
	b.WriteString(" at ")
	b.WriteString(t.Time)
	if t.Duration != "" {
		b.WriteString(" for ")
		b.WriteString(t.Duration)
	}
	if t.Priority {
		b.WriteString(" (priority)")
	}
	if t.Project != "" {
		b.WriteString(" #")
		b.WriteString(t.Project)
	}
	return b.String()
}

func helpText() string {
	return strings.Join([]string{
		"Describe a task in plain language and I'll extract the details.",
		"Commands:",
		"  /tasks [n]  show your latest tasks",
		"  /cancel     discard the task waiting for confirmation",
		"  /help       this message",
	}, "\n")
}
