// Package membership resolves and joins the configured channels before the
// live stream is subscribed.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/Log-Tools/telegram-ingest/internal/telemetry"
)

// Platform is the slice of the chat client the manager needs.
type Platform interface {
	ResolveEntity(ctx context.Context, ref platform.ChannelRef) (platform.Entity, error)
	Join(ctx context.Context, entity platform.Entity) error
}

// NameCache receives the display name of every joined channel.
type NameCache interface {
	Remember(entity platform.Entity) string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Status describes the membership state of a channel.
type Status string

// StatusJoined is the only status a JoinedChannel is created with.
const StatusJoined Status = "joined"

// JoinedChannel is a channel the session is a member of for this run.
type JoinedChannel struct {
	ID     int64
	Name   string
	Status Status
	Ref    platform.ChannelRef
}

// Manager joins channels in order, skipping the ones that cannot be joined.
type Manager struct {
	platform Platform
	names    NameCache
	sleep    SleepFunc
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSleep replaces the rate-limit wait, mainly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a membership manager.
func NewManager(p Platform, names NameCache, opts ...Option) *Manager {
	m := &Manager{
		platform: p,
		names:    names,
		sleep:    Sleep,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "membership"))
	return m
}

// Sleep waits for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Join resolves and joins refs in order and returns the channels joined. The
// result may be empty. An error is returned only when ctx is cancelled.
func (m *Manager) Join(ctx context.Context, refs []platform.ChannelRef) ([]JoinedChannel, error) {
	joined := make([]JoinedChannel, 0, len(refs))
	seen := make(map[int64]struct{}, len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return joined, fmt.Errorf("channel join interrupted: %w", err)
		}

		entity, err := m.joinOne(ctx, ref)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return joined, fmt.Errorf("channel join interrupted: %w", ctxErr)
			}
			m.logSkip(ref, err)
			continue
		}

		if _, dup := seen[entity.ID]; dup {
			m.logger.Info("channel already joined, skipping duplicate reference",
				slog.String("ref", ref.Raw), slog.Int64("channel_id", entity.ID))
			continue
		}
		seen[entity.ID] = struct{}{}

		name := m.names.Remember(entity)
		telemetry.IncChannelJoin(telemetry.JoinJoined)
		m.logger.Info("✅ joined channel",
			slog.String("ref", ref.Raw), slog.Int64("channel_id", entity.ID), slog.String("name", name))

		joined = append(joined, JoinedChannel{ID: entity.ID, Name: name, Status: StatusJoined, Ref: ref})
	}

	m.logger.Info(fmt.Sprintf("joined %d/%d channels", len(joined), len(refs)))
	telemetry.SetJoinedChannels(len(joined))
	return joined, nil
}

// joinOne runs one resolve+join attempt and, if the provider rate limits it,
// waits the required duration and tries the same ref exactly once more.
func (m *Manager) joinOne(ctx context.Context, ref platform.ChannelRef) (platform.Entity, error) {
	entity, err := m.attempt(ctx, ref)
	wait, limited := platform.AsRateLimit(err)
	if !limited {
		return entity, err
	}

	telemetry.IncChannelJoin(telemetry.JoinRateLimited)
	m.logger.Warn("⚠️ rate limited, waiting before retry",
		slog.String("ref", ref.Raw), slog.Duration("wait", wait))
	if err := m.sleep(ctx, wait); err != nil {
		return platform.Entity{}, err
	}
	telemetry.ObserveRateLimitWait(wait)

	entity, err = m.attempt(ctx, ref)
	if _, limited := platform.AsRateLimit(err); limited {
		return platform.Entity{}, fmt.Errorf("rate limited twice in a row, skipping for this run: %w", err)
	}
	return entity, err
}

func (m *Manager) attempt(ctx context.Context, ref platform.ChannelRef) (platform.Entity, error) {
	entity, err := m.platform.ResolveEntity(ctx, ref)
	if err != nil {
		return platform.Entity{}, fmt.Errorf("failed to resolve %s: %w", ref.Raw, err)
	}
	if err := m.platform.Join(ctx, entity); err != nil {
		return platform.Entity{}, fmt.Errorf("failed to join %s: %w", ref.Raw, err)
	}
	return entity, nil
}

func (m *Manager) logSkip(ref platform.ChannelRef, err error) {
	attrs := []any{slog.String("ref", ref.Raw), slog.Any("err", err)}

	switch _, limited := platform.AsRateLimit(err); {
	case errors.Is(err, platform.ErrNotFound):
		telemetry.IncChannelJoin(telemetry.JoinNotFound)
		m.logger.Warn("⚠️ channel not found, skipping", attrs...)
	case errors.Is(err, platform.ErrPrivate):
		telemetry.IncChannelJoin(telemetry.JoinPrivate)
		m.logger.Warn("⚠️ channel is private or inaccessible, skipping", attrs...)
	case limited:
		telemetry.IncChannelJoin(telemetry.JoinRateLimited)
		m.logger.Warn("⚠️ channel still rate limited after retry, skipping", attrs...)
	default:
		telemetry.IncChannelJoin(telemetry.JoinError)
		m.logger.Error("❌ failed to join channel, skipping", attrs...)
	}
}
