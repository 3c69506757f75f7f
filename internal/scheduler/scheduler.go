package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/probe"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

const (
	DefaultTickInterval  = 30 * time.Second
	DefaultMaxConcurrent = 10

	// dueSlack absorbs the gap between a tick firing and lastCheck being stamped.
	dueSlack = time.Second
)

type Recorder interface {
	Record(ctx context.Context, id domain.MonitorID, status domain.Status) (domain.Event, error)
	Latest(ctx context.Context, id domain.MonitorID) (*domain.Event, error)
}

type Notifier interface {
	Notify(ctx context.Context, m domain.Monitor, status domain.Status) (domain.Notification, error)
}

type WebhookDispatcher interface {
	Dispatch(ctx context.Context, wh *domain.Webhook, status domain.Status) error
}

type Broadcaster interface {
	BroadcastStatusChange(id domain.MonitorID, status domain.Status) int
}

type Deps struct {
	Registry repo.MonitorRegistry
	Status   repo.StatusStore
	Prober   probe.Prober
	Recorder Recorder
	Notifier Notifier
	Webhooks WebhookDispatcher
	Hub      Broadcaster
}

type Config struct {
	TickInterval  time.Duration
	HonorInterval bool
	MaxConcurrent int
	DiagnoseDNS   bool
}

// CheckOutcome is the result of one monitor's check within a tick.
type CheckOutcome struct {
	MonitorID domain.MonitorID `json:"monitor_id"`
	Previous  domain.Status    `json:"previous"`
	Status    domain.Status    `json:"status"`
	Changed   bool             `json:"changed"`
	// Abandoned is set when the cycle was cancelled mid-probe; nothing was
	// recorded or persisted for the monitor.
	Abandoned bool             `json:"abandoned,omitempty"`
	Err       error            `json:"-"`
	Error     string           `json:"error,omitempty"`
}

type TickReport struct {
	StartedAt time.Time      `json:"started_at"`
	Checked   int            `json:"checked"`
	Skipped   int            `json:"skipped"`
	Changed   int            `json:"changed"`
	Outcomes  []CheckOutcome `json:"outcomes"`
}

type Scheduler struct {
	log  *zap.Logger
	deps Deps
	cfg  Config

	diagnose func(ctx context.Context, target string) probe.DNSStatus
	now      func() time.Time

	mu      sync.Mutex
	running map[domain.MonitorID]struct{}
	lastRun map[domain.MonitorID]time.Time
}

func New(log *zap.Logger, deps Deps, cfg Config) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TickInterval < 0 {
		cfg.TickInterval = 0
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		log:      log,
		deps:     deps,
		cfg:      cfg,
		diagnose: probe.Diagnose,
		now:      func() time.Time { return time.Now().UTC() },
		running:  make(map[domain.MonitorID]struct{}),
		lastRun:  make(map[domain.MonitorID]time.Time),
	}
}

// Run does an immediate pass, then one pass per tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.TickInterval == 0 {
		s.log.Info("scheduler_disabled")
		return
	}
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler_stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	// errors are already logged by RunOnce
	_, _ = s.RunOnce(ctx, false)
}

// RunOnce runs a single check cycle. With force every active monitor is
// checked regardless of its interval. Only a registry failure is returned;
// per-monitor failures are reported in the outcomes.
func (s *Scheduler) RunOnce(ctx context.Context, force bool) (TickReport, error) {
	report := TickReport{StartedAt: s.now()}

	monitors, err := s.deps.Registry.ListActive(ctx)
	if err != nil {
		s.log.Warn("tick_list_failed", zap.Error(err))
		return report, fmt.Errorf("list active monitors: %w", err)
	}

	due := s.claim(monitors, report.StartedAt, force)
	report.Skipped = len(monitors) - len(due)

	outcomes := make([]CheckOutcome, len(due))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrent)
	for i, m := range due {
		i, m := i, m
		g.Go(func() error {
			defer s.release(m.ID)
			outcomes[i] = s.checkMonitor(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	report.Checked = len(outcomes)
	report.Outcomes = outcomes
	for _, o := range outcomes {
		if o.Changed {
			report.Changed++
		}
	}

	s.log.Info("tick_done",
		zap.Bool("force", force),
		zap.Int("active", len(monitors)),
		zap.Int("checked", report.Checked),
		zap.Int("skipped", report.Skipped),
		zap.Int("changed", report.Changed),
	)
	return report, nil
}

// claim picks the monitors to check this tick and marks them in flight.
func (s *Scheduler) claim(monitors []domain.Monitor, now time.Time, force bool) []domain.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[domain.MonitorID]struct{}, len(monitors))
	due := make([]domain.Monitor, 0, len(monitors))
	for _, m := range monitors {
		active[m.ID] = struct{}{}
		if _, busy := s.running[m.ID]; busy {
			s.log.Debug("monitor_in_flight", zap.String("monitor_id", string(m.ID)))
			continue
		}
		if !force && s.cfg.HonorInterval && !s.isDue(m, now) {
			continue
		}
		s.running[m.ID] = struct{}{}
		s.lastRun[m.ID] = now
		due = append(due, m)
	}

	for id := range s.lastRun {
		if _, ok := active[id]; !ok {
			delete(s.lastRun, id)
		}
	}
	return due
}

// isDue must be called with s.mu held.
func (s *Scheduler) isDue(m domain.Monitor, now time.Time) bool {
	last, ok := s.lastRun[m.ID]
	if !ok {
		if m.LastCheck == nil {
			return true
		}
		last = *m.LastCheck
	}
	return !now.Before(last.Add(m.IntervalDuration() - dueSlack))
}

func (s *Scheduler) release(id domain.MonitorID) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Scheduler) checkMonitor(ctx context.Context, m domain.Monitor) (out CheckOutcome) {
	out.MonitorID = m.ID
	defer func() {
		if r := recover(); r != nil {
			cid := uuid.NewString()
			s.log.Error("check_panic",
				zap.String("correlation_id", cid),
				zap.String("monitor_id", string(m.ID)),
				zap.Any("panic", r),
			)
			out.Err = multierr.Append(out.Err, fmt.Errorf("panic (correlation id %s): %v", cid, r))
			out.Error = out.Err.Error()
		}
	}()

	checkedAt := s.now()
	reachable := s.deps.Prober.Probe(ctx, m.URL, m.TimeoutDuration())
	if err := ctx.Err(); err != nil {
		// the probe was cut short by us, not by the target
		out.Abandoned = true
		out.Err = fmt.Errorf("check abandoned: %w", err)
		out.Error = out.Err.Error()
		s.log.Info("check_abandoned",
			zap.String("monitor_id", string(m.ID)),
			zap.Error(err),
		)
		return out
	}
	current := domain.StatusFromProbe(reachable)
	out.Status = current

	if !reachable && s.cfg.DiagnoseDNS {
		d := s.diagnose(ctx, m.URL)
		s.log.Info("dns_diagnosis",
			zap.String("monitor_id", string(m.ID)),
			zap.String("domain", d.Domain),
			zap.String("class", d.Class),
			zap.String("resolver_error", d.ResolverError),
		)
	}

	var errs error
	previous, err := s.previousStatus(ctx, m)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	out.Previous = previous

	if err == nil && Detect(previous, current) {
		out.Changed = true
		s.log.Info("status_changed",
			zap.String("monitor_id", string(m.ID)),
			zap.String("name", m.Name),
			zap.String("from", string(previous)),
			zap.String("to", string(current)),
		)
		errs = multierr.Append(errs, s.applyTransition(ctx, domain.Transition{
			Monitor:  m,
			Previous: previous,
			Current:  current,
			At:       checkedAt,
		}))
	}

	if err := s.deps.Status.UpdateStatus(ctx, m.ID, current, checkedAt); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("update status: %w", err))
	}

	s.log.Debug("monitor_checked",
		zap.String("monitor_id", string(m.ID)),
		zap.String("url", m.URL),
		zap.String("status", string(current)),
	)
	if errs != nil {
		s.log.Warn("check_step_failed",
			zap.String("monitor_id", string(m.ID)),
			zap.Error(errs),
		)
		out.Err = errs
		out.Error = errs.Error()
	}
	return out
}

// previousStatus is the latest event's status, or the stored status when the
// monitor has no history yet.
func (s *Scheduler) previousStatus(ctx context.Context, m domain.Monitor) (domain.Status, error) {
	ev, err := s.deps.Recorder.Latest(ctx, m.ID)
	if err != nil {
		return domain.StatusUnknown, err
	}
	if ev != nil {
		return ev.Status, nil
	}
	if m.Status.Known() {
		return m.Status, nil
	}
	return domain.StatusUnknown, nil
}

// applyTransition runs every side effect even when an earlier one fails.
func (s *Scheduler) applyTransition(ctx context.Context, tr domain.Transition) error {
	m := tr.Monitor
	var errs error
	if _, err := s.deps.Recorder.Record(ctx, m.ID, tr.Current); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := s.deps.Notifier.Notify(ctx, m, tr.Current); err != nil {
		errs = multierr.Append(errs, err)
	}
	if m.Webhook != nil && s.deps.Webhooks != nil {
		if err := s.deps.Webhooks.Dispatch(ctx, m.Webhook, tr.Current); err != nil {
			s.log.Warn("webhook_failed",
				zap.String("monitor_id", string(m.ID)),
				zap.String("url", m.Webhook.URL),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	if s.deps.Hub != nil {
		s.deps.Hub.BroadcastStatusChange(m.ID, tr.Current)
	}
	return errs
}
