package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auratask/app/core/extraction"
	"auratask/app/pkg/types"
)

// State is the single tagged value that replaces the loading/pending boolean
// pairs: every reachable combination is a real state.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateAwaitingConfirmation
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned while a model or persistence call is in flight.
	// The submission surface is locked for that duration.
	ErrBusy = errors.New("conversation: a turn is already in flight")

	// ErrEmptyInput rejects blank submissions before they touch the transcript.
	ErrEmptyInput = errors.New("conversation: empty input")
)

// User-facing copy for the machine's terminal transitions.
const (
	connectionErrorText = "Sorry, I ran into a connection error."
	cancelledText       = "Okay, I've cancelled that task creation."
	saveFailedText      = "I had trouble saving that task. Please try again."
)

// Completer produces raw model text for a system prompt plus transcript.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, transcript []types.Message) (string, error)
}

// TaskCreator durably stores a confirmed draft for its owner.
type TaskCreator interface {
	CreateTask(ctx context.Context, userID string, draft types.TaskDraft) (string, error)
}

// Machine owns one user's transcript and pending-confirmation slot.
//
// Invariants: the transcript never loses a turn once appended, except that a
// resolved confirmation entry is replaced by its resolution message. At most
// one pending draft exists, and the model is never called while it does.
type Machine struct {
	mu         sync.Mutex
	state      State
	transcript []types.Message
	pending    *types.TaskDraft

	userID    string
	completer Completer
	store     TaskCreator
	now       func() time.Time

	lastActive time.Time
	counter    uint64
}

func NewMachine(userID string, greeting string, completer Completer, store TaskCreator) *Machine {
	m := &Machine{
		state:     StateIdle,
		userID:    strings.TrimSpace(userID),
		completer: completer,
		store:     store,
		now:       time.Now,
	}
	m.lastActive = m.now()
	if strings.TrimSpace(greeting) != "" {
		m.transcript = append(m.transcript, types.Message{
			ID:     m.newID(),
			Sender: types.SenderAssistant,
			Text:   greeting,
			Kind:   types.KindPlain,
		})
	}
	return m
}

// SetClock overrides the reference-date source. Tests only.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Submit processes one user utterance and returns the messages appended this
// turn, the user's own entry first. Network failures surface as assistant
// messages, not errors: only ErrBusy and ErrEmptyInput are returned.
func (m *Machine) Submit(ctx context.Context, text string) ([]types.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle && m.state != StateAwaitingConfirmation {
		return nil, ErrBusy
	}
	m.lastActive = m.now()

	userMsg := types.Message{
		ID:     m.newID(),
		Sender: types.SenderUser,
		Text:   text,
		Kind:   types.KindPlain,
	}
	m.transcript = append(m.transcript, userMsg)
	appended := []types.Message{userMsg}

	if m.state == StateAwaitingConfirmation {
		return append(appended, m.resolveConfirmation(ctx, text)), nil
	}
	return append(appended, m.consultModel(ctx)), nil
}

// resolveConfirmation settles the pending draft against the affirmative
// vocabulary. The model is never consulted here: that is what keeps a plain
// "yes" from being re-interpreted as a new, essentials-missing task request.
func (m *Machine) resolveConfirmation(ctx context.Context, text string) types.Message {
	draft := *m.pending

	if !IsAffirmative(text) {
		m.pending = nil
		m.state = StateIdle
		return m.appendAssistant(cancelledText, types.KindPlain, nil)
	}

	m.state = StatePersisting
	_, err := m.store.CreateTask(ctx, m.userID, draft)
	m.pending = nil
	m.state = StateIdle
	if err != nil {
		// Drop the draft rather than silently retry.
		return m.appendAssistant(saveFailedText, types.KindPlain, nil)
	}

	m.dropConfirmationEntry()
	success := fmt.Sprintf("Great! I've added %q to your tasks.", draft.Title)
	return m.appendAssistant(success, types.KindPlain, nil)
}

func (m *Machine) consultModel(ctx context.Context) types.Message {
	m.state = StateAwaitingModel
	prompt := extraction.BuildSystemPrompt(m.now())

	raw, err := m.completer.Complete(ctx, prompt, m.transcript)
	if err != nil {
		m.state = StateIdle
		return m.appendAssistant(connectionErrorText, types.KindPlain, nil)
	}

	reply := extraction.Interpret(raw)
	if reply.Kind == extraction.ReplyConfirmation {
		m.pending = reply.TaskData
		m.state = StateAwaitingConfirmation
		return m.appendAssistant(reply.Text, types.KindConfirmation, reply.TaskData)
	}

	m.state = StateIdle
	return m.appendAssistant(reply.Text, types.KindPlain, nil)
}

// CancelPending clears an outstanding draft without a model call, appending
// the cancellation notice. Reports whether anything was pending.
func (m *Machine) CancelPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingConfirmation || m.pending == nil {
		return false
	}
	m.pending = nil
	m.state = StateIdle
	m.appendAssistant(cancelledText, types.KindPlain, nil)
	return true
}

func (m *Machine) appendAssistant(text string, kind string, draft *types.TaskDraft) types.Message {
	msg := types.Message{
		ID:       m.newID(),
		Sender:   types.SenderAssistant,
		Text:     text,
		Kind:     kind,
		TaskData: draft,
	}
	m.transcript = append(m.transcript, msg)
	return msg
}

// dropConfirmationEntry removes the superseded confirmation message so the
// success notice replaces it instead of duplicating it.
func (m *Machine) dropConfirmationEntry() {
	kept := m.transcript[:0]
	for _, msg := range m.transcript {
		if msg.Kind == types.KindConfirmation {
			continue
		}
		kept = append(kept, msg)
	}
	m.transcript = kept
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether a suspended network operation holds the single
// in-flight slot. True exactly in AwaitingModel and Persisting.
func (m *Machine) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAwaitingModel || m.state == StatePersisting
}

func (m *Machine) PendingDraft() *types.TaskDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	copied := *m.pending
	return &copied
}

func (m *Machine) Transcript() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Message, len(m.transcript))
	copy(out, m.transcript)
	return out
}

func (m *Machine) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

func (m *Machine) newID() string {
	seq := atomic.AddUint64(&m.counter, 1)
	return fmt.Sprintf("msg-%d-%d", time.Now().UnixNano(), seq)
}
