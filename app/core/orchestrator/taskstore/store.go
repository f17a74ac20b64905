package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auratask/app/core/orchestrator/db"
	"auratask/app/pkg/logger"
	"auratask/app/pkg/types"
)

var (
	// ErrNotAuthenticated rejects writes without an owning user.
	ErrNotAuthenticated = errors.New("taskstore: user not authenticated")

	// ErrNotFound is returned for task ids that do not exist or belong to
	// another user.
	ErrNotFound = errors.New("taskstore: task not found")
)

// Task is a persisted draft: the extracted fields plus store-assigned
// identity, owner tag, completion flag and server timestamp.
type Task struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Duration  string `json:"duration,omitempty"`
	Priority  bool   `json:"priority"`
	Notes     string `json:"notes,omitempty"`
	Project   string `json:"project,omitempty"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"created_at"`
}

// Store is the task persistence gateway plus the live feed. Subscribers are
// notified after every committed change to their user's tasks.
type Store struct {
	db      *db.DB
	counter uint64

	subMu   sync.Mutex
	subs    map[string]map[uint64]func([]Task)
	subNext uint64
}

func NewStore(database *db.DB) *Store {
	return &Store{
		db:   database,
		subs: map[string]map[uint64]func([]Task){},
	}
}

// CreateTask stores a confirmed draft tagged with its owner and returns the
// assigned id. The draft must carry all three task essentials.
func (s *Store) CreateTask(ctx context.Context, userID string, draft types.TaskDraft) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrNotAuthenticated
	}
	if !draft.Complete() {
		return "", fmt.Errorf("taskstore: draft missing essentials")
	}

	id := s.newID("task")
	now := time.Now().Unix()
	query := `INSERT INTO tasks (id, user_id, title, date, time, duration, priority, notes, project, completed, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
	_, err := s.db.Conn().ExecContext(ctx, query,
		id, userID, draft.Title, draft.Date, draft.Time,
		draft.Duration, boolToInt(draft.Priority), draft.Notes, draft.Project, now)
	if err != nil {
		return "", fmt.Errorf("taskstore: insert task: %w", err)
	}

	s.notify(ctx, userID)
	return id, nil
}

// ListTasks returns the user's tasks in reverse-creation order.
func (s *Store) ListTasks(ctx context.Context, userID string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, title, date, time, COALESCE(duration, ''), priority, COALESCE(notes, ''), COALESCE(project, ''), completed, created_at
FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.Conn().QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0, limit)
	for rows.Next() {
		var (
			t                   Task
			priority, completed int
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Date, &t.Time, &t.Duration, &priority, &t.Notes, &t.Project, &completed, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Priority = priority != 0
		t.Completed = completed != 0
		items = append(items, t)
	}
	return items, rows.Err()
}

// GetTask fetches one task scoped to its owner.
func (s *Store) GetTask(ctx context.Context, userID string, taskID string) (Task, error) {
	query := `SELECT id, user_id, title, date, time, COALESCE(duration, ''), priority, COALESCE(notes, ''), COALESCE(project, ''), completed, created_at
FROM tasks WHERE id = ? AND user_id = ?`
	var (
		t                   Task
		priority, completed int
	)
	err := s.db.Conn().QueryRowContext(ctx, query, taskID, userID).Scan(
		&t.ID, &t.UserID, &t.Title, &t.Date, &t.Time, &t.Duration, &priority, &t.Notes, &t.Project, &completed, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	t.Priority = priority != 0
	t.Completed = completed != 0
	return t, nil
}

// ToggleComplete flips a task's completion flag.
func (s *Store) ToggleComplete(ctx context.Context, userID string, taskID string) (Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Task{}, ErrNotAuthenticated
	}
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE tasks SET completed = 1 - completed WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return Task{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Task{}, err
	}
	if affected == 0 {
		return Task{}, ErrNotFound
	}

	s.notify(ctx, userID)
	return s.GetTask(ctx, userID, taskID)
}

// DeleteTask removes a task permanently.
func (s *Store) DeleteTask(ctx context.Context, userID string, taskID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrNotAuthenticated
	}
	res, err := s.db.Conn().ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.notify(ctx, userID)
	return nil
}

// Subscribe registers a live feed for one user's tasks. The callback receives
// the newest-first snapshot after every store change until the returned
// function is called. Delivery is asynchronous; the feed shares no state with
// the conversation machine.
func (s *Store) Subscribe(userID string, onUpdate func([]Task)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.subNext
	s.subNext++
	if s.subs[userID] == nil {
		s.subs[userID] = map[uint64]func([]Task){}
	}
	s.subs[userID][id] = onUpdate
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		if set, ok := s.subs[userID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.subs, userID)
			}
		}
		s.subMu.Unlock()
	}
}

func (s *Store) notify(ctx context.Context, userID string) {
	s.subMu.Lock()
	set := s.subs[userID]
	callbacks := make([]func([]Task), 0, len(set))
	for _, fn := range set {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	items, err := s.ListTasks(ctx, userID, 0)
	if err != nil {
		logger.Error("[TaskStore] Feed snapshot failed for %s: %v", userID, err)
		return
	}
	for _, fn := range callbacks {
		go fn(items)
	}
}

func (s *Store) newID(prefix string) string {
	seq := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
