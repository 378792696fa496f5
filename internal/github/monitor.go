package github

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vibeboard/internal/db"
)

// DefaultSyncInterval is the period between reconciliation ticks.
const DefaultSyncInterval = 300 * time.Second

// MonitorStore is the repository slice the monitor reads links from.
type MonitorStore interface {
	SyncStore
	FindEnabledLinks(ctx context.Context) ([]db.GitHubProjectLink, error)
	FindLink(ctx context.Context, id uuid.UUID) (*db.GitHubProjectLink, error)
}

// Monitor periodically reconciles every sync-enabled project link. Links
// are processed sequentially within a tick, stalest first, and one
// link's failure never aborts the tick.
type Monitor struct {
	store    MonitorStore
	syncer   *Syncer
	interval time.Duration
}

// NewMonitor creates a monitor. Non-positive intervals fall back to the
// default.
func NewMonitor(store MonitorStore, syncer *Syncer, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Monitor{store: store, syncer: syncer, interval: interval}
}

// Start runs the reconciliation loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	slog.Info("starting github sync monitor", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping github sync monitor")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick performs one reconciliation pass over all enabled links.
func (m *Monitor) tick(ctx context.Context) {
	links, err := m.store.FindEnabledLinks(ctx)
	if err != nil {
		slog.Error("failed to load sync-enabled links", "error", err)
		return
	}
	for i := range links {
		link := &links[i]
		result, err := m.syncer.SyncFromGitHub(ctx, m.store, link)
		if err != nil {
			slog.Error("github sync failed", "link_id", link.ID, "error", err)
			continue
		}
		if len(result.Errors) > 0 {
			slog.Warn("github sync finished with item errors",
				"link_id", link.ID, "errors", len(result.Errors))
		}
	}
}
