package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quest-league/internal/config"
)

// Store lists the seasons and agents the reconciler walks.
type Store interface {
	ListSeasonIDs(ctx context.Context) ([]string, error)
	SeasonAgents(ctx context.Context, seasonID string) ([]string, error)
}

// Refresher recomputes one agent's leaderboard cache row.
type Refresher interface {
	RefreshLeaderboard(ctx context.Context, seasonID, agentName string) error
}

// Reconciler periodically recomputes every leaderboard cache row from the
// authoritative submissions, so rows left stale by a crash between insert
// and refresh eventually converge.
type Reconciler struct {
	store     Store
	refresher Refresher
	config    *config.ReconcileConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewReconciler creates a new reconciler
func NewReconciler(store Store, refresher Refresher, cfg *config.ReconcileConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		refresher: refresher,
		config:    cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background reconcile loop
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("leaderboard reconciler started", "interval", r.config.Interval)

	go r.run(ctx)
	return nil
}

// Stop stops the background reconcile loop
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info("leaderboard reconciler stopped")
	return nil
}

// run is the main worker loop
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reconcileAll(ctx)
		}
	}
}

// reconcileAll recomputes cache rows for every agent in every season
func (r *Reconciler) reconcileAll(ctx context.Context) {
	r.logger.Info("starting reconcile cycle")
	startTime := time.Now()

	seasonIDs, err := r.store.ListSeasonIDs(ctx)
	if err != nil {
		r.logger.Error("failed to list seasons for reconcile", "error", err)
		return
	}

	refreshed := 0
	errorCount := 0

	for _, seasonID := range seasonIDs {
		agents, err := r.store.SeasonAgents(ctx, seasonID)
		if err != nil {
			r.logger.Error("failed to list season agents",
				"season_id", seasonID,
				"error", err,
			)
			errorCount++
			continue
		}

		for _, agentName := range agents {
			if err := r.refresher.RefreshLeaderboard(ctx, seasonID, agentName); err != nil {
				r.logger.Error("failed to refresh leaderboard entry",
					"season_id", seasonID,
					"agent_name", agentName,
					"error", err,
				)
				errorCount++
			} else {
				refreshed++
			}
		}
	}

	r.logger.Info("reconcile cycle completed",
		"duration", time.Since(startTime),
		"refreshed", refreshed,
		"errors", errorCount,
	)
}

// IsRunning returns whether the reconciler is currently running
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunOnce runs a single reconcile cycle (useful for manual triggers)
func (r *Reconciler) RunOnce(ctx context.Context) {
	r.reconcileAll(ctx)
}
