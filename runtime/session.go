package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inletlabs/inlet/adapter"
	"github.com/inletlabs/inlet/artifact"
	"github.com/inletlabs/inlet/faults"
	"github.com/inletlabs/inlet/journal"
	"github.com/inletlabs/inlet/log"
	"github.com/inletlabs/inlet/metrics"
	"github.com/inletlabs/inlet/reveal"
	"github.com/inletlabs/inlet/store"
	"github.com/inletlabs/inlet/types"
)

// finalizeTimeout bounds terminal store writes. Finalization runs on a
// fresh context so an aborted session still records its terminal state.
const finalizeTimeout = 5 * time.Second

// Transport opens the byte stream for one session attempt. It is
// re-invoked on connect retries, so it must be safe to call more than
// once.
type Transport func(ctx context.Context) (io.ReadCloser, error)

// StateObserver receives streaming-state snapshots for the UI layer.
// Called from the session and pacer goroutines; must be safe for
// concurrent use.
type StateObserver func(state types.StreamingState)

// RevealOptions selects and tunes the built-in pacer used when no
// custom Pacer is injected. Zero values take the strategy defaults.
type RevealOptions struct {
	// Strategy is "time-sliced" (default) or "char-paced".
	Strategy string
	// FlushInterval tunes the time-sliced pacer.
	FlushInterval time.Duration
	// CharsPerSecond tunes the char-paced pacer.
	CharsPerSecond float64
}

// SessionConfig configures one stream session.
type SessionConfig struct {
	// SessionID is the session identifier. Generated when empty.
	SessionID string
	// ConversationID is the owning conversation. May be empty when the
	// backend assigns one mid-stream.
	ConversationID string
	// AssistantMessageID is the message the session writes into. Required.
	AssistantMessageID string

	// Open opens the record stream. Required.
	Open Transport
	// Store is the state repository. Required.
	Store store.Store

	// Reveal selects the built-in pacer. The built-in strategies
	// persist each flush through the session's store; an injected
	// Pacer bypasses that, leaving persistence to its own observer.
	Reveal RevealOptions
	// Pacer overrides the built-in pacer. Optional.
	Pacer reveal.Pacer
	// Retry configures connect retries. Zero fields take defaults.
	Retry faults.RetryConfig

	Logger    *log.Logger
	Collector *metrics.Collector
	// Journal archives decoded records for replay. Optional.
	Journal *journal.Writer
	// Observer receives state snapshots. Optional.
	Observer StateObserver
	// Notifiers receive the completion event. Optional.
	Notifiers []adapter.Adapter
}

// Result is the terminal outcome of a session.
type Result struct {
	Status   types.SessionStatus
	Fault    *types.ClassifiedError
	Text     string
	Artifact *types.Artifact
	ToolLog  []types.ToolResult
	Metrics  metrics.Snapshot
}

// Session is one running stream ingestion.
//
// All store writes happen either in the session goroutine or in pacer
// flush callbacks; the pacer is closed before the session goroutine
// finalizes, so once Wait or Abort returns no further store mutation
// occurs.
type Session struct {
	meta         *types.SessionMeta
	config       SessionConfig
	pacer        reveal.Pacer
	materializer *artifact.Materializer
	logger       *log.Logger
	collector    *metrics.Collector

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	status   types.SessionStatus
	progress string
	revealed string
	fault    *types.ClassifiedError
	result   *Result
}

// Controller enforces the single-active-session rule: starting a
// session for a conversation aborts any prior non-terminal session for
// that conversation before the new one connects.
type Controller struct {
	logger *log.Logger

	mu     sync.Mutex
	active map[string]*Session
}

// NewController creates a session controller.
func NewController(logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Controller{
		logger: logger,
		active: make(map[string]*Session),
	}
}

// Start launches a session. A prior active session for the same
// conversation is aborted first and has fully finalized before the new
// session opens its transport.
func (c *Controller) Start(ctx context.Context, config SessionConfig) (*Session, error) {
	if config.Open == nil {
		return nil, errors.New("transport is required")
	}
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.AssistantMessageID == "" {
		return nil, errors.New("assistant message id is required")
	}
	switch config.Reveal.Strategy {
	case "", "time-sliced", "char-paced":
	default:
		return nil, fmt.Errorf("unknown reveal strategy %q", config.Reveal.Strategy)
	}
	if config.Reveal.FlushInterval < 0 || config.Reveal.CharsPerSecond < 0 {
		return nil, errors.New("reveal tuning values must be non-negative")
	}
	if config.SessionID == "" {
		config.SessionID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = c.logger
	}

	session := newSession(config)
	runCtx, cancel := context.WithCancel(ctx)
	session.cancel = cancel

	// The prior check and the map write happen under one lock hold, so
	// a racing Start for the same conversation either sees this session
	// registered and aborts it, or is the one aborted before this call
	// registers. Abort happens outside the lock and the check is
	// re-run, since another Start may have installed a replacement in
	// the meantime.
	for {
		c.mu.Lock()
		prior := c.active[config.ConversationID]
		if prior == nil || prior.Status().IsTerminal() {
			c.active[config.ConversationID] = session
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		c.logger.Info("aborting prior session", map[string]any{
			"conversation_id": config.ConversationID,
			"prior_session":   prior.meta.SessionID,
		})
		prior.Abort()
	}

	go session.run(runCtx)

	return session, nil
}

// Active returns the active session for a conversation, or nil.
func (c *Controller) Active(conversationID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[conversationID]
}

func newSession(config SessionConfig) *Session {
	meta := &types.SessionMeta{
		SessionID:          config.SessionID,
		ConversationID:     config.ConversationID,
		AssistantMessageID: config.AssistantMessageID,
		StartedAt:          time.Now().UTC(),
	}

	if config.Collector == nil {
		pacerName := config.Reveal.Strategy
		if pacerName == "" {
			pacerName = "time-sliced"
		}
		if config.Pacer != nil {
			pacerName = "custom"
		}
		config.Collector = metrics.NewCollector(pacerName, storeBackendName(config.Store), config.SessionID, config.ConversationID)
	}

	s := &Session{
		meta:      meta,
		config:    config,
		logger:    config.Logger.WithSession(meta),
		collector: config.Collector,
		done:      make(chan struct{}),
		status:    types.StatusConnecting,
	}

	s.pacer = config.Pacer
	if s.pacer == nil {
		// Start has already validated the options, so the constructors
		// cannot fail here.
		switch config.Reveal.Strategy {
		case "char-paced":
			s.pacer, _ = reveal.NewCharPacedPacer(reveal.CharPacedConfig{
				CharsPerSecond: config.Reveal.CharsPerSecond,
				Observer:       s.onReveal,
			})
		default:
			s.pacer, _ = reveal.NewTimeSlicedPacer(reveal.TimeSlicedConfig{
				FlushInterval: config.Reveal.FlushInterval,
				Observer:      s.onReveal,
			})
		}
	}
	s.materializer = artifact.NewMaterializer(meta, config.Store, s.logger, config.Collector)

	return s
}

func storeBackendName(st store.Store) string {
	if named, ok := st.(interface{ Backend() string }); ok {
		return named.Backend()
	}
	return "memory"
}

// run drives the session to a terminal state. Connect failures are
// retried under the retry budget; errors surfaced after streaming
// began are terminal, since replaying a partially consumed stream
// would double-apply records.
func (s *Session) run(ctx context.Context) {
	s.collector.IncSessionStarted()
	s.publishState()

	rc, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.finish(types.StatusAborted, nil)
		} else {
			s.finish(types.StatusError, faults.Classify(err))
		}
		return
	}

	// Unblock the decoder's blocking read on abort.
	go func() {
		<-ctx.Done()
		rc.Close()
	}()

	engine := NewEngine(rc, s.pacer, s.materializer, s, s.logger, s.collector, s.config.Journal)
	runErr := engine.Run(ctx)
	rc.Close()

	s.mu.Lock()
	s.result = &Result{ToolLog: engine.ToolLog()}
	s.mu.Unlock()

	switch {
	case runErr == nil:
		s.finish(types.StatusComplete, nil)
	case IsCanceledError(runErr):
		s.finish(types.StatusAborted, nil)
	default:
		s.finish(types.StatusError, faults.Classify(runErr))
	}
}

// connect opens the transport, retrying transient failures while the
// session is still in connecting.
func (s *Session) connect(ctx context.Context) (io.ReadCloser, error) {
	retrier := faults.NewRetrier(s.config.Retry)

	var rc io.ReadCloser
	attempt := 0
	err := retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.collector.IncRetries()
			s.logger.Info("reconnecting", map[string]any{"attempt": attempt})
		}
		opened, err := s.config.Open(ctx)
		if err != nil {
			return err
		}
		rc = opened
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// finish records the terminal state and finalizes all stores. Runs on
// a fresh context so an abort still persists its outcome.
func (s *Session) finish(status types.SessionStatus, fault *types.ClassifiedError) {
	fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	// Flush the reveal to the end, then stop the pacer's timers. After
	// Close returns no flush callback can fire.
	s.pacer.Finalize()
	s.pacer.Close()

	finalText := s.pacer.Committed()
	if err := s.config.Store.AppendText(fctx, s.conversationID(), s.meta.AssistantMessageID, finalText); err != nil {
		s.logger.Error("final text write failed", map[string]any{"error": err.Error()})
	}

	// The artifact is sealed on every terminal path. An aborted or
	// failed session must not leave a dangling streaming artifact.
	if err := s.materializer.Seal(fctx); err != nil {
		s.logger.Error("artifact seal failed", map[string]any{"error": err.Error()})
	}

	if err := s.config.Store.FinalizeMessage(fctx, s.conversationID(), s.meta.AssistantMessageID, status, fault); err != nil {
		s.logger.Error("message finalize failed", map[string]any{"error": err.Error()})
	}

	switch status {
	case types.StatusComplete:
		s.collector.IncSessionCompleted()
	case types.StatusAborted:
		s.collector.IncSessionAborted()
	case types.StatusError:
		s.collector.IncSessionFailed()
	}

	current := s.materializer.Current()

	s.mu.Lock()
	s.status = status
	s.fault = fault
	if s.result == nil {
		s.result = &Result{}
	}
	s.result.Status = status
	s.result.Fault = fault
	s.result.Text = finalText
	s.result.Artifact = current
	s.result.Metrics = s.collector.Snapshot()
	s.mu.Unlock()

	s.logger.Info("session finished", map[string]any{
		"status":   string(status),
		"text_len": len(finalText),
	})

	s.publishState()
	s.notify(fctx, status, fault, current, finalText)

	close(s.done)
}

func (s *Session) notify(ctx context.Context, status types.SessionStatus, fault *types.ClassifiedError, art *types.Artifact, text string) {
	if len(s.config.Notifiers) == 0 {
		return
	}

	event := &adapter.SessionCompletedEvent{
		SessionID:      s.meta.SessionID,
		ConversationID: s.conversationID(),
		MessageID:      s.meta.AssistantMessageID,
		Status:         status,
		Fault:          fault,
		TextLen:        len([]rune(text)),
		CompletedAt:    time.Now().UTC(),
	}
	if art != nil {
		event.ArtifactID = art.ID
		event.ArtifactVersion = art.Version
	}

	for _, notifier := range s.config.Notifiers {
		if err := notifier.Publish(ctx, event); err != nil {
			s.logger.Error("completion publish failed", map[string]any{
				"adapter": notifier.Name(),
				"error":   err.Error(),
			})
		}
	}
}

// Abort cancels the session and blocks until it has fully finalized.
// The terminal status is aborted unless the session already finished.
func (s *Session) Abort() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Wait blocks until the session reaches a terminal state.
func (s *Session) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, nil
}

// Status returns the current session status.
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Fault returns the classified failure, or nil.
func (s *Session) Fault() *types.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Meta returns a copy of the session identity.
func (s *Session) Meta() types.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.meta
}

func (s *Session) conversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.ConversationID
}

// OnStreamActivity implements StatusSink: the first delta or tool
// event moves the session out of connecting.
func (s *Session) OnStreamActivity() {
	s.mu.Lock()
	if s.status == types.StatusConnecting {
		s.status = types.StatusStreaming
	}
	s.mu.Unlock()
	s.publishState()
}

// OnThinking implements StatusSink. Narration updates the progress
// line only; it is never persisted.
func (s *Session) OnThinking(st *types.ThinkingStatus) {
	s.mu.Lock()
	s.progress = st.Message
	s.mu.Unlock()
	s.publishState()
}

// OnTool implements StatusSink. Tool events annotate the session
// status in arrival order.
func (s *Session) OnTool(ev *types.ToolEvent) {
	s.mu.Lock()
	s.status = types.StatusForTool(ev.Status)
	s.progress = ev.Progress()
	s.mu.Unlock()
	s.publishState()
}

// OnConversationID implements StatusSink.
func (s *Session) OnConversationID(id string) {
	s.mu.Lock()
	s.meta.ConversationID = id
	s.mu.Unlock()
	s.logger.Info("conversation id assigned", map[string]any{
		"conversation_id": id,
	})
}

// onReveal is the pacer observer: each flush persists the accumulated
// prefix and refreshes the observable state.
func (s *Session) onReveal(snap reveal.Snapshot) {
	s.mu.Lock()
	s.revealed = snap.Text
	s.mu.Unlock()

	if snap.Final {
		// Finalization writes the committed text itself.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := s.config.Store.AppendText(ctx, s.conversationID(), s.meta.AssistantMessageID, snap.Text); err != nil {
		s.logger.Warn("text flush failed", map[string]any{"error": err.Error()})
	}
	s.publishState()
}

// publishState emits a StreamingState snapshot to the observer.
func (s *Session) publishState() {
	if s.config.Observer == nil {
		return
	}

	s.mu.Lock()
	state := types.StreamingState{
		Stage:         s.status,
		Progress:      s.progress,
		StreamingText: s.revealed,
		Err:           s.fault,
	}
	s.mu.Unlock()

	if current := s.materializer.Current(); current != nil {
		state.ArtifactID = current.ID
	}

	s.config.Observer(state)
}

var _ StatusSink = (*Session)(nil)
