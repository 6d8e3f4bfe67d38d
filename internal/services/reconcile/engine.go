// Package reconcile owns the live transcript of one session: it feeds stream
// events through the stream buffer, keeps the last fetched snapshot, and
// publishes the merged view after every change.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/internal/metrics"
	"github.com/deepgram/chorus/internal/services/resync"
	"github.com/deepgram/chorus/pkg/logger"
)

var (
	ErrEngineClosed  = errors.New("engine closed")
	ErrEngineStarted = errors.New("engine already started")
	ErrNoSession     = errors.New("no session to attach to")
)

const inboxSize = 256

// Fetcher loads the authoritative snapshot of a session.
type Fetcher interface {
	GetSession(ctx context.Context, sessionID string) (transcript.Session, error)
}

// Store persists the last good snapshot between runs.
type Store interface {
	Load(ctx context.Context, sessionID string) (transcript.Session, error)
	Save(ctx context.Context, session transcript.Session) error
}

type Options struct {
	SessionID string
	Channel   transcript.Channel
	Fetcher   Fetcher
	// Store is optional.
	Store Store
	// Reporter is optional; notifications are always logged and counted.
	Reporter    Reporter
	ResyncDelay time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// View is an immutable published transcript.
type View struct {
	SessionID string                           `json:"session_id"`
	Messages  []transcript.ConversationMessage `json:"messages"`
}

type Engine struct {
	fetcher   Fetcher
	store     Store
	reporter  Reporter
	now       func() time.Time
	scheduler *resync.Scheduler

	inbox   chan func()
	quit    chan struct{}
	stopped chan struct{}
	updates chan struct{}
	view    atomic.Pointer[View]

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool

	// owned by the loop goroutine
	sessionID   string
	channel     transcript.Channel
	generation  uint64
	fetchSeq    uint64
	lastApplied uint64
	buffer      transcript.State
	snapshot    []transcript.ChatMessage

	initialSession string
	initialChannel transcript.Channel
}

func New(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("a session fetcher is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		fetcher:        opts.Fetcher,
		store:          opts.Store,
		reporter:       fanout{opts.Reporter},
		now:            clock,
		inbox:          make(chan func(), inboxSize),
		quit:           make(chan struct{}),
		stopped:        make(chan struct{}),
		updates:        make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		initialSession: opts.SessionID,
		initialChannel: opts.Channel,
	}
	e.scheduler = resync.NewScheduler(opts.ResyncDelay, func(sessionID string) {
		e.enqueue(func() { e.resync(sessionID) })
	})
	e.view.Store(&View{SessionID: opts.SessionID, Messages: []transcript.ConversationMessage{}})

	return e, nil
}

// Start runs the dispatch loop and attaches the initial session. The engine
// closes itself when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.initialSession == "" {
		return ErrNoSession
	}

	err := ErrEngineStarted
	e.startOnce.Do(func() {
		select {
		case <-e.quit:
			err = ErrEngineClosed
			return
		default:
		}

		err = nil
		e.started.Store(true)
		go e.loop()
		go func() {
			select {
			case <-ctx.Done():
				e.Close()
			case <-e.stopped:
			}
		}()

		id, ch := e.initialSession, e.initialChannel
		e.enqueue(func() { e.activate(id, ch) })
	})
	return err
}

// View returns the latest merged transcript.
func (e *Engine) View() View {
	return *e.view.Load()
}

// ResyncPending reports whether a snapshot refresh is armed for the attached
// session.
func (e *Engine) ResyncPending() bool {
	id := e.View().SessionID
	return id != "" && e.scheduler.Pending(id)
}

// Updates is signalled after each publish. Signals coalesce; read View after
// receiving.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// Send submits a user message on the active channel.
func (e *Engine) Send(ctx context.Context, content string) error {
	msg, err := transcript.NewOutboundMessage(content, e.now())
	if err != nil {
		e.report(KindSendInvalid, e.View().SessionID, "Message content is empty")
		return err
	}

	err = e.call(ctx, func() error {
		if e.channel == nil {
			e.report(KindSendFailed, e.sessionID, "")
			return transcript.ErrChannelNotOpen
		}
		if err := e.channel.Send(msg); err != nil {
			e.report(KindSendFailed, e.sessionID, "")
			if errors.Is(err, transcript.ErrChannelNotOpen) {
				return err
			}
			return fmt.Errorf("failed to send message: %w", err)
		}
		logger.Debug(logger.ENGINE, "Sent message on session %s", e.sessionID)
		return nil
	})
	if errors.Is(err, ErrEngineClosed) {
		e.report(KindSendFailed, "", "")
		return fmt.Errorf("%w: %w", transcript.ErrChannelNotOpen, err)
	}
	return err
}

// SwitchSession tears down the current session view and attaches to
// sessionID on ch. Results of fetches issued for the old session are
// discarded.
func (e *Engine) SwitchSession(ctx context.Context, sessionID string, ch transcript.Channel) error {
	if sessionID == "" {
		return ErrNoSession
	}
	return e.call(ctx, func() error {
		e.detach()
		e.activate(sessionID, ch)
		return nil
	})
}

// Close detaches the channel callbacks, closes the channel, cancels pending
// refreshes and discards state. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.quit)
		if e.started.Load() {
			<-e.stopped
		} else {
			e.teardown()
			close(e.stopped)
		}
	})
	return nil
}

// Done is closed once the engine has shut down.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

func (e *Engine) loop() {
	for {
		select {
		case fn := <-e.inbox:
			fn()
		case <-e.quit:
			e.teardown()
			close(e.stopped)
			return
		}
	}
}

// enqueue hands fn to the loop. It reports false once the engine is closing.
func (e *Engine) enqueue(fn func()) bool {
	select {
	case <-e.quit:
		return false
	default:
	}

	select {
	case e.inbox <- fn:
		return true
	case <-e.quit:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (e *Engine) call(ctx context.Context, fn func() error) error {
	if !e.started.Load() {
		return ErrEngineClosed
	}

	result := make(chan error, 1)
	if !e.enqueue(func() { result <- fn() }) {
		return ErrEngineClosed
	}

	select {
	case err := <-result:
		return err
	case <-e.stopped:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) activate(sessionID string, ch transcript.Channel) {
	e.generation++
	gen := e.generation
	e.sessionID = sessionID
	e.channel = ch
	e.buffer = transcript.State{}
	e.snapshot = nil
	e.lastApplied = 0

	logger.Info(logger.ENGINE, "Attaching to session %s (generation %d)", sessionID, gen)

	if ch != nil {
		ch.OnError(func(err error) {
			e.enqueue(func() { e.channelError(gen, err) })
		})
		ch.OnEvent(func(raw []byte) {
			e.enqueue(func() { e.ingest(gen, raw) })
		})
	}

	if e.store != nil {
		go e.loadCached(sessionID, gen)
	}
	e.fetch(sessionID, gen)
	e.publish()
}

func (e *Engine) detach() {
	if e.channel != nil {
		e.channel.OnEvent(nil)
		e.channel.OnError(nil)
		if err := e.channel.Close(); err != nil {
			logger.Warn(logger.ENGINE, "Failed to close channel for session %s: %v", e.sessionID, err)
		}
		e.channel = nil
	}
	if e.sessionID != "" {
		e.scheduler.Cancel(e.sessionID)
	}
}

func (e *Engine) teardown() {
	e.detach()
	e.scheduler.Stop()
	e.cancel()

	logger.Info(logger.ENGINE, "Engine closed for session %s", e.sessionID)

	e.sessionID = ""
	e.buffer = transcript.State{}
	e.snapshot = nil
	e.view.Store(&View{Messages: []transcript.ConversationMessage{}})
	metrics.ViewMessages.Set(0)
}

func (e *Engine) ingest(gen uint64, raw []byte) {
	if gen != e.generation {
		return
	}

	ev, err := transcript.ParseEvent(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, transcript.ErrUnknownEvent) {
			reason = "unknown_type"
		}
		metrics.EventsDropped.WithLabelValues(reason).Inc()
		logger.Debug(logger.INGEST, "Dropping stream event: %v", err)
		return
	}

	next, fx := transcript.Apply(e.buffer, ev, e.now())

	switch fx.Outcome {
	case transcript.Dropped:
		metrics.EventsDropped.WithLabelValues("no_open_turn").Inc()
		logger.Debug(logger.INGEST, "Dropping %s for %s: no open turn", ev.Type, ev.AgentName)
		return
	case transcript.Applied:
		metrics.EventsIngested.WithLabelValues(string(ev.Type)).Inc()
	}

	if fx.Superseded != "" {
		metrics.TurnsSuperseded.Inc()
		logger.Warn(logger.INGEST, "Agent %s restarted before finishing turn %s", ev.AgentName, fx.Superseded)
	}

	if ev.Type == transcript.KindError {
		metrics.EventsIngested.WithLabelValues(string(ev.Type)).Inc()
		e.report(KindAgent, e.sessionID, fx.AgentError)
		return
	}

	if fx.Outcome != transcript.Applied {
		return
	}

	e.buffer = next
	if fx.Resync {
		e.scheduler.Schedule(e.sessionID)
	}
	e.publish()
}

func (e *Engine) channelError(gen uint64, err error) {
	if gen != e.generation {
		return
	}
	logger.Error(logger.TRANSPORT, "Session %s stream error: %v", e.sessionID, err)
	e.report(KindChannel, e.sessionID, "Connection error. Please try again.")
}

func (e *Engine) resync(sessionID string) {
	if sessionID != e.sessionID {
		return
	}
	e.fetch(sessionID, e.generation)
}

func (e *Engine) fetch(sessionID string, gen uint64) {
	e.fetchSeq++
	seq := e.fetchSeq

	go func() {
		start := time.Now()
		session, err := e.fetcher.GetSession(e.ctx, sessionID)
		metrics.SnapshotFetchDuration.Observe(time.Since(start).Seconds())

		e.enqueue(func() { e.applyFetch(sessionID, gen, seq, session, err) })
	}()
}

func (e *Engine) applyFetch(sessionID string, gen, seq uint64, session transcript.Session, err error) {
	if sessionID != e.sessionID || gen != e.generation || seq <= e.lastApplied {
		metrics.SnapshotFetches.WithLabelValues("stale").Inc()
		logger.Debug(logger.SNAPSHOT, "Discarding stale snapshot for session %s (seq %d)", sessionID, seq)
		return
	}

	if err != nil {
		metrics.SnapshotFetches.WithLabelValues("error").Inc()
		logger.Error(logger.SNAPSHOT, "Failed to fetch session %s: %v", sessionID, err)
		e.report(KindSessionLoad, sessionID, Describe(err))
		return
	}

	metrics.SnapshotFetches.WithLabelValues("applied").Inc()
	e.lastApplied = seq
	e.replaceSnapshot(session.Messages)

	if e.store != nil {
		if session.ID == "" {
			session.ID = sessionID
		}
		go func() {
			if err := e.store.Save(e.ctx, session); err != nil {
				logger.Warn(logger.SNAPSHOT, "Snapshot write-through failed for session %s: %v", sessionID, err)
			}
		}()
	}
}

func (e *Engine) loadCached(sessionID string, gen uint64) {
	session, err := e.store.Load(e.ctx, sessionID)
	if err != nil {
		return
	}

	e.enqueue(func() {
		// a fetched snapshot always wins over the cached one
		if sessionID != e.sessionID || gen != e.generation || e.lastApplied != 0 {
			return
		}
		logger.Debug(logger.SNAPSHOT, "Seeding session %s from stored snapshot", sessionID)
		e.replaceSnapshot(session.Messages)
	})
}

func (e *Engine) replaceSnapshot(messages []transcript.ChatMessage) {
	e.snapshot = append([]transcript.ChatMessage(nil), messages...)
	e.buffer = transcript.Prune(e.buffer, e.snapshot)
	e.publish()
}

func (e *Engine) publish() {
	merged := transcript.Merge(e.snapshot, e.buffer.Entries())
	e.view.Store(&View{SessionID: e.sessionID, Messages: merged})
	metrics.ViewMessages.Set(float64(len(merged)))

	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) report(kind Kind, sessionID, description string) {
	e.reporter.Report(NewNotification(kind, sessionID, description, e.now()))
}
