package gateway

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"auratask/app/core/queue"
	"auratask/app/pkg/logger"
	"auratask/app/pkg/types"
)

// QueueOptions controls turn serialization. EnqueueTimeout bounds how long an
// inbound message waits for the single execution slot.
type QueueOptions struct {
	Enabled        bool
	EnqueueTimeout time.Duration
	AttemptTimeout time.Duration
}

// DefaultGateway fans channel input into the assistant and replies on the
// originating channel.
type DefaultGateway struct {
	assistant types.Assistant
	mu        sync.RWMutex
	channels  map[string]types.Channel

	executionQueue *queue.Queue
	queueOptions   QueueOptions

	processedMessages uint64
	failedMessages    uint64
	lastMessageUnix   atomic.Int64
	startedUnix       atomic.Int64
}

type HealthStatus struct {
	Started            bool
	StartedAt          time.Time
	RegisteredChannels []string
	AssistantName      string
	ProcessedMessages  uint64
	FailedMessages     uint64
	LastMessageAt      time.Time
	QueueEnabled       bool
	Queue              queue.Stats
}

func NewGateway(assistant types.Assistant) *DefaultGateway {
	return &DefaultGateway{
		assistant: assistant,
		channels:  make(map[string]types.Channel),
	}
}

func (g *DefaultGateway) RegisterChannel(c types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
	logger.Info("[Gateway] Registered channel: %s", c.ID())
}

// SetExecutionQueue routes turns through q. With a single worker this is what
// enforces one in-flight model/persistence call across all channels.
func (g *DefaultGateway) SetExecutionQueue(q *queue.Queue, opts QueueOptions) {
	if opts.EnqueueTimeout < 0 {
		opts.EnqueueTimeout = 0
	}
	if opts.AttemptTimeout < 0 {
		opts.AttemptTimeout = 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.executionQueue = q
	g.queueOptions = opts
}

func (g *DefaultGateway) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	g.startedUnix.Store(time.Now().Unix())

	handler := func(msg types.Message) {
		atomic.AddUint64(&g.processedMessages, 1)
		g.lastMessageUnix.Store(time.Now().Unix())
		logger.Info("[Gateway] Received message from channel=%s user=%s", msg.ChannelID, msg.UserID)

		if g.queueEnabled() {
			g.dispatchWithQueue(ctx, msg)
			return
		}
		if err := g.processAndReply(ctx, msg); err != nil {
			atomic.AddUint64(&g.failedMessages, 1)
			logger.Error("[Gateway] Processing failed: %v", err)
			g.sendErrorReply(ctx, msg, "Error: "+err.Error())
		}
	}

	g.mu.RLock()
	for _, c := range g.channels {
		wg.Add(1)
		go func(ch types.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, handler); err != nil && ctx.Err() == nil {
				logger.Error("[Gateway] Channel %s error: %v", ch.ID(), err)
			}
		}(c)
	}
	g.mu.RUnlock()

	logger.Info("[Gateway] Started all channels")
	wg.Wait()
	return nil
}

func (g *DefaultGateway) queueEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queueOptions.Enabled && g.executionQueue != nil
}

func (g *DefaultGateway) dispatchWithQueue(ctx context.Context, msg types.Message) {
	g.mu.RLock()
	q := g.executionQueue
	opts := g.queueOptions
	g.mu.RUnlock()

	enqueueCtx := ctx
	cancel := func() {}
	if opts.EnqueueTimeout > 0 {
		enqueueCtx, cancel = context.WithTimeout(ctx, opts.EnqueueTimeout)
	}
	defer cancel()

	_, err := q.EnqueueContext(enqueueCtx, queue.Job{
		AttemptTimeout: opts.AttemptTimeout,
		Run: func(runCtx context.Context) error {
			if err := g.processAndReply(runCtx, msg); err != nil {
				atomic.AddUint64(&g.failedMessages, 1)
				logger.Error("[Gateway] Processing failed: %v", err)
				g.sendErrorReply(runCtx, msg, "Error: "+err.Error())
				return err
			}
			return nil
		},
	})
	if err != nil {
		atomic.AddUint64(&g.failedMessages, 1)
		logger.Error("[Gateway] Enqueue failed: %v", err)
		g.sendErrorReply(ctx, msg, "The assistant is overloaded right now. Please try again.")
	}
}

func (g *DefaultGateway) processAndReply(ctx context.Context, msg types.Message) error {
	reply, err := g.assistant.Process(ctx, msg)
	if err != nil {
		return err
	}
	if reply.Text == "" {
		return nil
	}
	return g.sendToChannel(ctx, reply)
}

func (g *DefaultGateway) sendErrorReply(ctx context.Context, inbound types.Message, text string) {
	reply := types.Message{
		Sender:    types.SenderAssistant,
		Text:      text,
		Kind:      types.KindPlain,
		ChannelID: inbound.ChannelID,
		UserID:    inbound.UserID,
		RequestID: inbound.RequestID,
	}
	if err := g.sendToChannel(ctx, reply); err != nil {
		logger.Error("[Gateway] Failed to deliver error reply: %v", err)
	}
}

func (g *DefaultGateway) sendToChannel(ctx context.Context, msg types.Message) error {
	g.mu.RLock()
	ch, ok := g.channels[msg.ChannelID]
	g.mu.RUnlock()
	if !ok {
		logger.Error("[Gateway] Unknown channel for reply: %s", msg.ChannelID)
		return nil
	}
	return ch.Send(ctx, msg)
}

// Health returns a point-in-time gateway snapshot for the status endpoint.
func (g *DefaultGateway) Health() HealthStatus {
	g.mu.RLock()
	channels := make([]string, 0, len(g.channels))
	for id := range g.channels {
		channels = append(channels, id)
	}
	q := g.executionQueue
	queueEnabled := g.queueOptions.Enabled && q != nil
	g.mu.RUnlock()
	sort.Strings(channels)

	status := HealthStatus{
		RegisteredChannels: channels,
		AssistantName:      g.assistant.Name(),
		ProcessedMessages:  atomic.LoadUint64(&g.processedMessages),
		FailedMessages:     atomic.LoadUint64(&g.failedMessages),
		QueueEnabled:       queueEnabled,
	}
	if started := g.startedUnix.Load(); started > 0 {
		status.Started = true
		status.StartedAt = time.Unix(started, 0).UTC()
	}
	if last := g.lastMessageUnix.Load(); last > 0 {
		status.LastMessageAt = time.Unix(last, 0).UTC()
	}
	if queueEnabled {
		status.Queue = q.Stats()
	}
	return status
}
