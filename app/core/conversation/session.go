package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auratask/app/core/orchestrator/command"
	"auratask/app/pkg/logger"
	"auratask/app/pkg/types"
)

const busyText = "One moment, I'm still working on your previous message."

// Service multiplexes per-user conversation machines behind the Assistant
// interface. Each channel/user pair gets its own transcript and pending slot.
type Service struct {
	name     string
	greeting string

	completer Completer
	store     TaskCreator
	commands  *command.Executor

	mu       sync.Mutex
	sessions map[string]*Machine

	counter uint64
}

func NewService(name string, greeting string, completer Completer, store TaskCreator, commands *command.Executor) *Service {
	return &Service{
		name:      name,
		greeting:  greeting,
		completer: completer,
		store:     store,
		commands:  commands,
		sessions:  map[string]*Machine{},
	}
}

func (s *Service) Name() string {
	return s.name
}

// Process handles one inbound channel message and returns the reply to send
// back on that channel.
func (s *Service) Process(ctx context.Context, msg types.Message) (types.Message, error) {
	channelID := strings.TrimSpace(msg.ChannelID)
	if channelID == "" {
		channelID = "unknown"
	}
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return s.newReply(msg, channelID, userID, "", types.KindPlain, nil), nil
	}

	machine := s.machineFor(channelID, userID)

	if strings.HasPrefix(text, "/") && s.commands != nil {
		out, handled, err := s.commands.Execute(ctx, userID, text, machine)
		if handled {
			if err != nil {
				logger.Error("[Conversation] Command failed for %s: %v", userID, err)
				return s.newReply(msg, channelID, userID, fmt.Sprintf("Command failed: %v", err), types.KindPlain, nil), nil
			}
			return s.newReply(msg, channelID, userID, out, types.KindPlain, nil), nil
		}
	}

	appended, err := machine.Submit(ctx, text)
	if err == ErrBusy {
		return s.newReply(msg, channelID, userID, busyText, types.KindPlain, nil), nil
	}
	if err != nil {
		return types.Message{}, err
	}

	// The last appended message is always the assistant's resolution of the turn.
	last := appended[len(appended)-1]
	reply := s.newReply(msg, channelID, userID, last.Text, last.Kind, last.TaskData)
	reply.Meta["state"] = machine.State().String()
	return reply, nil
}

func (s *Service) machineFor(channelID string, userID string) *Machine {
	key := channelID + ":" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.sessions[key]; ok {
		return m
	}
	m := NewMachine(userID, s.greeting, s.completer, s.store)
	s.sessions[key] = m
	return m
}

// SweepIdle drops sessions inactive for longer than ttl and reports how many
// were removed. A dropped session loses only its transcript; persisted tasks
// are untouched.
func (s *Service) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, m := range s.sessions {
		// Never reap a session mid-flight or with a draft awaiting its answer.
		if m.Loading() || m.PendingDraft() != nil {
			continue
		}
		if m.LastActive().Before(cutoff) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// SessionCount returns the number of live conversations.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) newReply(in types.Message, channelID string, userID string, text string, kind string, draft *types.TaskDraft) types.Message {
	meta := map[string]interface{}{}
	for k, v := range in.Meta {
		meta[k] = v
	}
	seq := atomic.AddUint64(&s.counter, 1)
	return types.Message{
		ID:        fmt.Sprintf("asst-%d-%d", time.Now().UnixNano(), seq),
		Sender:    types.SenderAssistant,
		Text:      text,
		Kind:      kind,
		TaskData:  draft,
		ChannelID: channelID,
		UserID:    userID,
		RequestID: in.RequestID,
		Meta:      meta,
	}
}
