package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/Log-Tools/telegram-ingest/internal/events"
	"github.com/Log-Tools/telegram-ingest/internal/filters"
	"github.com/Log-Tools/telegram-ingest/internal/ingestion"
	"github.com/Log-Tools/telegram-ingest/internal/membership"
	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/Log-Tools/telegram-ingest/internal/telemetry"
)

// ErrNoChannelsJoined is returned by Start when none of the configured
// channels could be joined.
var ErrNoChannelsJoined = errors.New("no channels joined")

// Session is the authenticated platform stream.
type Session interface {
	Authenticate(ctx context.Context) error
	Subscribe(channelIDs []int64, handler platform.EventHandler) error
	RunUntilDisconnected(ctx context.Context) error
}

// Joiner establishes channel membership.
type Joiner interface {
	Join(ctx context.Context, refs []platform.ChannelRef) ([]membership.JoinedChannel, error)
}

// Normalizer converts a platform event into a wire record.
type Normalizer interface {
	Normalize(ctx context.Context, ev platform.Event) (events.IngestRecord, error)
}

// Publisher enqueues records and drains them on shutdown.
type Publisher interface {
	Publish(record events.IngestRecord) error
	Flush() error
	Close()
}

// Options contains controller settings
type Options struct {
	Credentials config.Credentials
	Channels    []platform.ChannelRef
	RunID       string
	Logger      *slog.Logger

	// StatsInterval logs statistics every N received events (0 disables)
	StatsInterval int

	// ShutdownTimeout bounds the wait for the platform run loop to exit
	ShutdownTimeout time.Duration
}

// Stats is a snapshot of dispatch counters
type Stats struct {
	Received      int64
	Published     int64
	Filtered      int64
	Dropped       int64
	PublishFailed int64
}

// Controller drives authentication, channel joins, subscription and
// shutdown, and dispatches stream events one at a time through the
// normalizer to the publisher.
type Controller struct {
	opts       Options
	session    Session
	joiner     Joiner
	normalizer Normalizer
	publisher  Publisher
	logger     *slog.Logger

	// mu serializes dispatch and state changes
	mu     sync.Mutex
	state  atomic.Int32
	filter *filters.ChannelFilter
	joined []membership.JoinedChannel
	stats  Stats

	stopOnce    sync.Once
	stopChan    chan struct{}
	releaseOnce sync.Once
}

// NewController creates a controller in the Init state
func NewController(opts Options, session Session, joiner Joiner, normalizer Normalizer, publisher Publisher) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	logger := opts.Logger.With(slog.String("component", "controller"))
	if opts.RunID != "" {
		logger = logger.With(slog.String("run_id", opts.RunID))
	}

	c := &Controller{
		opts:       opts,
		session:    session,
		joiner:     joiner,
		normalizer: normalizer,
		publisher:  publisher,
		logger:     logger,
		filter:     filters.NewChannelFilter(nil),
		stopChan:   make(chan struct{}),
	}
	telemetry.SetControllerState(int(StateInit))
	return c
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Joined returns the channels joined during Start
func (c *Controller) Joined() []membership.JoinedChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]membership.JoinedChannel(nil), c.joined...)
}

// Stats returns a snapshot of the dispatch counters
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Start authenticates, joins the configured channels and subscribes to
// exactly the joined set. On success the controller is Running.
func (c *Controller) Start(ctx context.Context) error {
	if s := c.State(); s.Terminal() {
		return fmt.Errorf("%w: controller already %s and cannot be restarted", ErrIllegalTransition, s)
	}
	if err := c.transition(StateAuthenticating); err != nil {
		return err
	}

	// Credentials are checked before any network activity
	if err := c.opts.Credentials.Validate(); err != nil {
		c.fail(err)
		return fmt.Errorf("failed to start ingestion: %w", err)
	}

	c.logger.Info("🔐 authenticating")
	if err := c.session.Authenticate(ctx); err != nil {
		var authErr *platform.AuthError
		if !errors.As(err, &authErr) {
			err = &platform.AuthError{Err: err}
		}
		c.fail(err)
		return err
	}

	if err := c.transition(StateJoiningChannels); err != nil {
		return err
	}

	c.logger.Info(fmt.Sprintf("joining %d channels", len(c.opts.Channels)))
	joined, err := c.joiner.Join(ctx, c.opts.Channels)
	if err != nil {
		c.fail(err)
		return fmt.Errorf("failed to join channels: %w", err)
	}
	if len(joined) == 0 {
		c.fail(ErrNoChannelsJoined)
		return ErrNoChannelsJoined
	}

	ids := make([]int64, 0, len(joined))
	for _, ch := range joined {
		ids = append(ids, ch.ID)
	}

	// Hold the dispatch lock so no event is handled before Running
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Subscribe(ids, c.dispatch); err != nil {
		c.failLocked(err)
		return fmt.Errorf("failed to subscribe to channels: %w", err)
	}
	c.filter = filters.NewChannelFilter(ids)
	c.joined = joined

	if err := c.transitionLocked(StateSubscribed); err != nil {
		return err
	}
	if err := c.transitionLocked(StateRunning); err != nil {
		return err
	}

	c.logger.Info(fmt.Sprintf("✅ subscribed to %d channels, waiting for messages", c.filter.Len()),
		slog.Any("channel_ids", c.filter.IDs()))
	return nil
}

// Run starts the controller and blocks until ctx is cancelled, Stop is
// called or the platform stream disconnects, then flushes and closes the
// publisher. The publisher is released on every return path.
func (c *Controller) Run(ctx context.Context) error {
	defer c.release()

	if err := c.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	disconnected := make(chan error, 1)
	go func() {
		disconnected <- c.session.RunUntilDisconnected(runCtx)
	}()

	streamDone := false
	select {
	case <-ctx.Done():
		c.logger.Info("🛑 context cancelled, stopping ingestion")
	case <-c.stopChan:
		c.logger.Info("🛑 stop requested, stopping ingestion")
	case err := <-disconnected:
		streamDone = true
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("⚠️ platform stream disconnected", slog.Any("err", err))
		} else {
			c.logger.Info("platform stream disconnected")
		}
	}

	if err := c.transition(StateStopping); err != nil {
		return err
	}

	cancel()
	if !streamDone {
		select {
		case <-disconnected:
		case <-time.After(c.opts.ShutdownTimeout):
			c.logger.Warn("⚠️ platform run loop did not exit in time", slog.Duration("timeout", c.opts.ShutdownTimeout))
		}
	}

	c.release()

	if err := c.transition(StateStopped); err != nil {
		return err
	}

	c.logStats("✅ ingestion stopped")
	return nil
}

// Stop requests shutdown of a running controller. It is safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

// dispatch handles one inbound event. It never panics or returns an error;
// failures are logged and counted.
func (c *Controller) dispatch(ctx context.Context, ev platform.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Received++
	telemetry.IncEventsReceived()

	if c.State() != StateRunning {
		c.stats.Dropped++
		telemetry.IncEventsDropped(telemetry.DropNotRunning)
		return
	}
	if !c.filter.ShouldProcess(ev) {
		c.stats.Filtered++
		telemetry.IncEventsDropped(telemetry.DropFiltered)
		return
	}

	ctx, span := telemetry.StartDispatchSpan(ctx, chatID(ev), ev.MessageID)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			c.stats.Dropped++
			telemetry.IncEventsDropped(telemetry.DropMalformed)
			c.logger.Error("❌ recovered panic while dispatching event",
				slog.Int64("chat_id", chatID(ev)), slog.Int("message_id", ev.MessageID), slog.Any("panic", r))
		}
	}()

	telemetry.TimeFunc(telemetry.DispatchDuration, func() {
		record, err := c.normalizer.Normalize(ctx, ev)
		if err != nil {
			c.stats.Dropped++
			telemetry.IncEventsDropped(telemetry.DropMalformed)
			telemetry.RecordError(span, err)
			c.logger.Warn("⚠️ dropping event that could not be normalized",
				slog.Int64("chat_id", chatID(ev)), slog.Int("message_id", ev.MessageID), slog.Any("err", err))
			return
		}

		if err := c.publisher.Publish(record); err != nil {
			c.stats.PublishFailed++
			telemetry.RecordError(span, err)
			c.logger.Error("❌ failed to publish record",
				slog.Int64("channel_id", record.ChannelID), slog.Int("message_id", record.MessageID), slog.Any("err", err))
			return
		}

		c.stats.Published++
		telemetry.SetSpanSuccess(span)
		c.logger.Debug(fmt.Sprintf("[%s] %s: %s", record.ChannelName, ingestion.DisplayName(ev.Sender), ingestion.Preview(record.Text)))
	})

	if c.opts.StatsInterval > 0 && c.stats.Received%int64(c.opts.StatsInterval) == 0 {
		c.logStatsLocked("📊 ingestion statistics")
	}
}

// release flushes and closes the publisher exactly once. A flush timeout is
// logged and close still proceeds.
func (c *Controller) release() {
	c.releaseOnce.Do(func() {
		if err := c.publisher.Flush(); err != nil {
			c.logger.Warn("⚠️ flush did not complete before close", slog.Any("err", err))
		}
		c.publisher.Close()
	})
}

func (c *Controller) transition(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(next)
}

func (c *Controller) transitionLocked(next State) error {
	current := c.State()
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}
	c.state.Store(int32(next))
	telemetry.SetControllerState(int(next))
	c.logger.Debug("state changed", slog.String("from", current.String()), slog.String("to", next.String()))
	return nil
}

func (c *Controller) fail(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(cause)
}

func (c *Controller) failLocked(cause error) {
	if err := c.transitionLocked(StateFailed); err != nil {
		c.logger.Error("❌ could not enter failed state", slog.Any("err", err))
	}
	c.logger.Error("❌ ingestion failed to start", slog.Any("err", cause))
}

func (c *Controller) logStats(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logStatsLocked(msg)
}

func (c *Controller) logStatsLocked(msg string) {
	c.logger.Info(msg,
		slog.Int64("received", c.stats.Received),
		slog.Int64("published", c.stats.Published),
		slog.Int64("filtered", c.stats.Filtered),
		slog.Int64("dropped", c.stats.Dropped),
		slog.Int64("publish_failed", c.stats.PublishFailed))
}

func chatID(ev platform.Event) int64 {
	if ev.Chat == nil {
		return 0
	}
	return ev.Chat.ID
}
