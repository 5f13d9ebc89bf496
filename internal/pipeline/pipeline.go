package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Status lines shown to users.
const (
	StatusLoading    = "Loading reports..."
	StatusLoadFailed = "Failed to load reports"
)

// ReportSource reads reports from the backend.
type ReportSource interface {
	LoadRecentReports(ctx context.Context) ([]domain.Report, error)
	LoadReportsForUser(ctx context.Context, userID string) ([]domain.Report, error)
}

// SessionSource reports whether a user is signed in.
type SessionSource interface {
	Current() (domain.Session, bool)
}

// Sink receives every freshly loaded recent-report list.
type Sink interface {
	Publish(ctx context.Context, reports []domain.Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, reports []domain.Report) error

func (f SinkFunc) Publish(ctx context.Context, reports []domain.Report) error {
	return f(ctx, reports)
}

// Config tunes the synchronizer.
type Config struct {
	PollInterval time.Duration
	// Concurrency bounds parallel geocoding requests per cycle.
	Concurrency int
	// EnrichTimeout caps the time a cycle spends geocoding. Reports not
	// resolved by then keep the coordinate label until a later cycle.
	EnrichTimeout time.Duration
	Clock         clockwork.Clock
}

// Synchronizer keeps the in-memory report views in step with the backend
// while a user is signed in.
type Synchronizer struct {
	source   ReportSource
	sessions SessionSource
	geocoder domain.Geocoder
	sinks    []Sink
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	interval time.Duration
	limit    int
	budget   time.Duration

	ready   atomic.Bool
	cycleMu sync.Mutex
	wake    chan struct{}

	// epoch advances on every sign-out; results loaded under an older
	// epoch are dropped.
	epoch  atomic.Uint64
	sinkMu sync.Mutex

	mu          sync.RWMutex
	reports     []domain.Report
	userReports []domain.Report
	status      string
	lastSync    time.Time
}

// New creates a Synchronizer. geocoder may be nil to keep stored labels.
func New(source ReportSource, sessions SessionSource, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics, cfg Config, sinks ...Sink) *Synchronizer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Synchronizer{
		source:   source,
		sessions: sessions,
		geocoder: geocoder,
		sinks:    sinks,
		logger:   logger,
		metrics:  metrics,
		clock:    cfg.Clock,
		interval: cfg.PollInterval,
		limit:    cfg.Concurrency,
		budget:   cfg.EnrichTimeout,
		wake:     make(chan struct{}, 1),
		status:   StatusLoading,
	}
}

// CheckReadiness returns nil once the first load has succeeded.
func (s *Synchronizer) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no report list has been loaded yet")
	}
	return nil
}

// Reports returns a copy of the current recent-report list, newest first.
func (s *Synchronizer) Reports() []domain.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Report(nil), s.reports...)
}

// UserReports returns a copy of the signed-in user's report history.
func (s *Synchronizer) UserReports() []domain.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Report(nil), s.userReports...)
}

// Status returns the current status line.
func (s *Synchronizer) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus replaces the status line.
func (s *Synchronizer) SetStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = msg
}

// LastSync returns when the recent list was last replaced.
func (s *Synchronizer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// OnSessionChange wakes the loop on sign-in. On sign-out both report views
// are dropped and every sink is handed an empty list. It matches
// session.Listener.
func (s *Synchronizer) OnSessionChange(_ domain.Session, signedIn bool) {
	if signedIn {
		select {
		case s.wake <- struct{}{}:
		default:
		}
		return
	}

	s.epoch.Add(1)
	s.mu.Lock()
	s.reports = nil
	s.userReports = nil
	s.lastSync = time.Time{}
	s.status = StatusLoading
	s.mu.Unlock()
	s.metrics.ReportsLoaded.WithLabelValues("recent").Set(0)
	s.metrics.ReportsLoaded.WithLabelValues("user").Set(0)

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	for _, sink := range s.sinks {
		if err := sink.Publish(context.Background(), nil); err != nil {
			s.logger.Warn("sink clear failed", "error", err)
		}
	}
}

// Run polls until the context is cancelled. Ticks while signed out are
// ignored; a sign-in (see OnSessionChange) triggers an immediate full refresh.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.logger.Info("synchronizer started", "interval", s.interval)
	s.metrics.SyncRunning.Set(1)
	defer s.metrics.SyncRunning.Set(0)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	if _, ok := s.sessions.Current(); ok {
		// A sign-in before Run is covered by this refresh.
		select {
		case <-s.wake:
		default:
		}
		_ = s.Refresh(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("synchronizer stopping", "reason", ctx.Err())
			return nil
		case <-s.wake:
			_ = s.Refresh(ctx)
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick runs one poll of the recent list. A tick that finds a cycle still in
// flight is skipped rather than queued.
func (s *Synchronizer) tick(ctx context.Context) {
	epoch := s.epoch.Load()
	if _, ok := s.sessions.Current(); !ok {
		return
	}
	if !s.cycleMu.TryLock() {
		s.metrics.SyncCycles.WithLabelValues("skipped").Inc()
		s.logger.Debug("previous sync still running, skipping tick")
		return
	}
	defer s.cycleMu.Unlock()
	_ = s.syncRecent(ctx, epoch)
}

// Refresh reloads both the recent list and the user's history, waiting for
// any in-flight cycle first. The recent-list error, if any, is returned.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	epoch := s.epoch.Load()
	sess, ok := s.sessions.Current()
	if !ok {
		return domain.ErrAuthRequired
	}
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	err := s.syncRecent(ctx, epoch)
	if errors.Is(err, domain.ErrAuthRequired) {
		return err
	}
	s.syncUser(ctx, sess.UserID, epoch)
	return err
}

// syncRecent replaces the recent list and feeds the sinks. Results are
// dropped when a sign-out moved the epoch past the one the cycle began in.
func (s *Synchronizer) syncRecent(ctx context.Context, epoch uint64) error {
	start := s.clock.Now()
	cycleID := uuid.NewString()

	reports, err := s.source.LoadRecentReports(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("load reports failed", "cycle_id", cycleID, "error", err)
		s.metrics.SyncCycles.WithLabelValues("error").Inc()
		s.SetStatus(StatusLoadFailed)
		return err
	}

	reports = s.enrich(ctx, reports)

	s.mu.Lock()
	if s.epoch.Load() != epoch {
		s.mu.Unlock()
		s.logger.Debug("signed out during sync, dropping result", "cycle_id", cycleID)
		return domain.ErrAuthRequired
	}
	s.reports = reports
	s.lastSync = s.clock.Now()
	s.status = fmt.Sprintf("%d reports loaded", len(reports))
	s.mu.Unlock()

	s.ready.Store(true)
	s.metrics.ReportsLoaded.WithLabelValues("recent").Set(float64(len(reports)))
	s.metrics.SyncCycles.WithLabelValues("success").Inc()
	s.metrics.SyncDuration.Observe(s.clock.Since(start).Seconds())
	s.logger.Debug("reports synced", "cycle_id", cycleID, "count", len(reports))

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if s.epoch.Load() != epoch {
		return domain.ErrAuthRequired
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, append([]domain.Report(nil), reports...)); err != nil {
			s.logger.Warn("sink publish failed", "cycle_id", cycleID, "error", err)
		}
	}
	return nil
}

func (s *Synchronizer) syncUser(ctx context.Context, userID string, epoch uint64) {
	reports, err := s.source.LoadReportsForUser(ctx, userID)
	if err != nil {
		s.logger.Error("load user reports failed", "user_id", userID, "error", err)
		return
	}
	reports = s.enrich(ctx, reports)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.Load() != epoch {
		return
	}
	s.userReports = reports
	s.metrics.ReportsLoaded.WithLabelValues("user").Set(float64(len(reports)))
}

// enrich geocodes every report's label in parallel within the cycle's
// geocoding budget. Failures fall back per report and never fail the batch.
func (s *Synchronizer) enrich(ctx context.Context, reports []domain.Report) []domain.Report {
	if s.geocoder == nil || len(reports) == 0 {
		return domain.WithLocationFallback(reports)
	}
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	out := make([]domain.Report, len(reports))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, r := range reports {
		g.Go(func() error {
			out[i] = domain.EnrichWithGeocoding(gctx, r, s.geocoder, s.logger)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
