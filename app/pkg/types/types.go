package types

import "context"

// Message senders as they appear on the wire and in prompts.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message kinds. A confirmation message carries the draft it restates.
const (
	KindPlain        = "plain"
	KindConfirmation = "confirmation"
)

// TaskDraft is a fully-specified, unpersisted task awaiting confirmation.
// It is never emitted partially filled: Title, Date and Time are the task
// essentials and must all be present.
type TaskDraft struct {
	Title    string `json:"title"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration string `json:"duration,omitempty"`
	Priority bool   `json:"priority,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Project  string `json:"project,omitempty"`
}

// Complete reports whether all three task essentials are present.
func (d TaskDraft) Complete() bool {
	return d.Title != "" && d.Date != "" && d.Time != ""
}

// Message represents one chat turn or channel event.
type Message struct {
	ID        string
	Sender    string // "user" or "assistant"
	Text      string
	Kind      string // "plain" or "confirmation"
	TaskData  *TaskDraft
	ChannelID string // source channel identifier (e.g. "cli", "telegram")
	UserID    string
	RequestID string
	Meta      map[string]interface{}
}

// Assistant is the conversational core behind every channel.
type Assistant interface {
	Process(ctx context.Context, msg Message) (Message, error)
	Name() string
}

// Channel represents an input/output surface (CLI, Telegram).
type Channel interface {
	Start(ctx context.Context, handler func(Message)) error
	Send(ctx context.Context, msg Message) error
	ID() string
}

// Gateway orchestrates channels and the assistant.
type Gateway interface {
	RegisterChannel(c Channel)
	Start(ctx context.Context) error
}
