package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"auratask/app/pkg/types"
)

const confirmationJSON = `{"type":"confirmation","taskData":{"title":"Call mom","date":"2026-08-29","time":"2pm"},"text":"You want to call mom tomorrow at 2pm. Shall I add it?"}`

type stubCompleter struct {
	replies []string
	err     error
	calls   int
	lastLen int
}

func (s *stubCompleter) Complete(ctx context.Context, systemPrompt string, transcript []types.Message) (string, error) {
	s.calls++
	s.lastLen = len(transcript)
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type stubStore struct {
	err     error
	created []types.TaskDraft
	users   []string
}

func (s *stubStore) CreateTask(ctx context.Context, userID string, draft types.TaskDraft) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.created = append(s.created, draft)
	s.users = append(s.users, userID)
	return "task-1", nil
}

func newTestMachine(completer Completer, store TaskCreator) *Machine {
	return NewMachine("u-1", "Hello! How can I help you schedule your day?", completer, store)
}

func TestGreetingSeedsTranscript(t *testing.T) {
	m := newTestMachine(&stubCompleter{}, &stubStore{})
	transcript := m.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("unexpected transcript length: %d", len(transcript))
	}
	if transcript[0].Sender != types.SenderAssistant {
		t.Fatalf("unexpected greeting sender: %s", transcript[0].Sender)
	}
	if transcript[0].Text != "Hello! How can I help you schedule your day?" {
		t.Fatalf("unexpected greeting: %s", transcript[0].Text)
	}
}

func TestHappyPathCreateAndConfirm(t *testing.T) {
	completer := &stubCompleter{replies: []string{confirmationJSON}}
	store := &stubStore{}
	m := newTestMachine(completer, store)

	appended, err := m.Submit(context.Background(), "remind me to call mom tomorrow at 2pm")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(appended) != 2 {
		t.Fatalf("unexpected appended count: %d", len(appended))
	}
	if appended[1].Kind != types.KindConfirmation {
		t.Fatalf("unexpected reply kind: %s", appended[1].Kind)
	}
	if m.State() != StateAwaitingConfirmation {
		t.Fatalf("unexpected state: %s", m.State())
	}
	if m.PendingDraft() == nil {
		t.Fatal("expected pending draft")
	}

	appended, err = m.Submit(context.Background(), "yes")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	final := appended[len(appended)-1]
	if final.Text != `Great! I've added "Call mom" to your tasks.` {
		t.Fatalf("unexpected success text: %s", final.Text)
	}
	if m.State() != StateIdle {
		t.Fatalf("unexpected state after confirm: %s", m.State())
	}
	if m.PendingDraft() != nil {
		t.Fatal("pending draft should be cleared")
	}
	if len(store.created) != 1 || store.created[0].Title != "Call mom" {
		t.Fatalf("unexpected persisted drafts: %+v", store.created)
	}
	if store.users[0] != "u-1" {
		t.Fatalf("unexpected owner: %s", store.users[0])
	}
	if completer.calls != 1 {
		t.Fatalf("confirmation turn must not call the model, calls=%d", completer.calls)
	}
}

func TestConfirmationEntryReplacedOnSuccess(t *testing.T) {
	completer := &stubCompleter{replies: []string{confirmationJSON}}
	m := newTestMachine(completer, &stubStore{})

	if _, err := m.Submit(context.Background(), "call mom tomorrow 2pm"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := m.Submit(context.Background(), "yes"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	for _, msg := range m.Transcript() {
		if msg.Kind == types.KindConfirmation {
			t.Fatalf("confirmation entry should be replaced by the success notice: %+v", msg)
		}
	}
}

func TestClarifyingQuestionKeepsIdle(t *testing.T) {
	completer := &stubCompleter{replies: []string{"When would you like to do that?"}}
	m := newTestMachine(completer, &stubStore{})

	appended, err := m.Submit(context.Background(), "remind me to call mom")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if appended[1].Text != "When would you like to do that?" {
		t.Fatalf("unexpected reply: %s", appended[1].Text)
	}
	if m.State() != StateIdle {
		t.Fatalf("unexpected state: %s", m.State())
	}
	if m.PendingDraft() != nil {
		t.Fatal("question must not set a pending draft")
	}
}

func TestDeclineCancelsWithoutModelCall(t *testing.T) {
	completer := &stubCompleter{replies: []string{confirmationJSON}}
	store := &stubStore{}
	m := newTestMachine(completer, store)

	if _, err := m.Submit(context.Background(), "call mom tomorrow 2pm"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	appended, err := m.Submit(context.Background(), "actually no")
	if err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	if appended[1].Text != "Okay, I've cancelled that task creation." {
		t.Fatalf("unexpected cancel text: %s", appended[1].Text)
	}
	if m.State() != StateIdle || m.PendingDraft() != nil {
		t.Fatal("decline should clear the pending draft")
	}
	if len(store.created) != 0 {
		t.Fatal("declined draft must not be persisted")
	}
	if completer.calls != 1 {
		t.Fatalf("decline must not call the model, calls=%d", completer.calls)
	}
}

func TestTransportFailureSurfacesAsMessage(t *testing.T) {
	completer := &stubCompleter{err: errors.New("boom")}
	m := newTestMachine(completer, &stubStore{})

	appended, err := m.Submit(context.Background(), "call mom tomorrow 2pm")
	if err != nil {
		t.Fatalf("submit should not propagate transport errors: %v", err)
	}
	if appended[1].Text != "Sorry, I ran into a connection error." {
		t.Fatalf("unexpected error text: %s", appended[1].Text)
	}
	if m.State() != StateIdle {
		t.Fatalf("unexpected state: %s", m.State())
	}
	// The failed user turn stays in the transcript so the user can retry.
	transcript := m.Transcript()
	if transcript[len(transcript)-2].Text != "call mom tomorrow 2pm" {
		t.Fatal("user turn missing from transcript after failure")
	}
}

func TestSaveFailureDropsDraft(t *testing.T) {
	completer := &stubCompleter{replies: []string{confirmationJSON}}
	store := &stubStore{err: errors.New("disk full")}
	m := newTestMachine(completer, store)

	if _, err := m.Submit(context.Background(), "call mom tomorrow 2pm"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	appended, err := m.Submit(context.Background(), "yes")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if appended[1].Text != "I had trouble saving that task. Please try again." {
		t.Fatalf("unexpected save-failure text: %s", appended[1].Text)
	}
	if m.State() != StateIdle || m.PendingDraft() != nil {
		t.Fatal("save failure should return to idle with no pending draft")
	}
}

func TestMalformedModelOutputApologizes(t *testing.T) {
	completer := &stubCompleter{replies: []string{`{"type":"confirmation","taskData":{"title":"x"}`}}
	m := newTestMachine(completer, &stubStore{})

	appended, err := m.Submit(context.Background(), "call mom tomorrow 2pm")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if appended[1].Text != "Sorry, I had trouble understanding that. Could you rephrase your request?" {
		t.Fatalf("unexpected apology: %s", appended[1].Text)
	}
	if m.State() != StateIdle || m.PendingDraft() != nil {
		t.Fatal("malformed output must not leave a pending draft")
	}
}

func TestAffirmativeWhileIdleGoesToModel(t *testing.T) {
	completer := &stubCompleter{replies: []string{"What would you like me to schedule?"}}
	store := &stubStore{}
	m := newTestMachine(completer, store)

	if _, err := m.Submit(context.Background(), "yes"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if completer.calls != 1 {
		t.Fatalf("idle affirmative should consult the model, calls=%d", completer.calls)
	}
	if len(store.created) != 0 {
		t.Fatal("idle affirmative must not persist anything")
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	m := newTestMachine(&stubCompleter{}, &stubStore{})
	if _, err := m.Submit(context.Background(), "   "); err != ErrEmptyInput {
		t.Fatalf("expected ErrEmptyInput, got: %v", err)
	}
}

func TestSubmitRejectsWhileLoading(t *testing.T) {
	m := newTestMachine(&stubCompleter{}, &stubStore{})
	m.mu.Lock()
	m.state = StateAwaitingModel
	m.mu.Unlock()

	if _, err := m.Submit(context.Background(), "hello"); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got: %v", err)
	}
}

func TestCancelPending(t *testing.T) {
	completer := &stubCompleter{replies: []string{confirmationJSON}}
	m := newTestMachine(completer, &stubStore{})

	if m.CancelPending() {
		t.Fatal("nothing pending yet")
	}
	if _, err := m.Submit(context.Background(), "call mom tomorrow 2pm"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !m.CancelPending() {
		t.Fatal("expected cancel to report a cleared draft")
	}
	if m.State() != StateIdle || m.PendingDraft() != nil {
		t.Fatal("cancel should clear the pending draft")
	}
}

func TestSubmitUpdatesLastActive(t *testing.T) {
	completer := &stubCompleter{replies: []string{"ok, noted"}}
	m := newTestMachine(completer, &stubStore{})

	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return fixed })

	if _, err := m.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !m.LastActive().Equal(fixed) {
		t.Fatalf("unexpected last active: %s", m.LastActive())
	}
}
