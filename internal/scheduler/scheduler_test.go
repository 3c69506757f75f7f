package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/history"
	"github.com/hamed0406/uptimewatch/internal/hub"
	"github.com/hamed0406/uptimewatch/internal/notify"
	"github.com/hamed0406/uptimewatch/internal/probe"
	"github.com/hamed0406/uptimewatch/internal/repo/memory"
	"github.com/hamed0406/uptimewatch/internal/webhook"
)

// fakeProber answers from a per-URL table; unknown URLs are reachable.
type fakeProber struct {
	mu    sync.Mutex
	down  map[string]bool
	panic map[string]bool
	calls atomic.Int32
}

func newFakeProber() *fakeProber {
	return &fakeProber{down: map[string]bool{}, panic: map[string]bool{}}
}

func (f *fakeProber) set(url string, reachable bool) {
	f.mu.Lock()
	f.down[url] = !reachable
	f.mu.Unlock()
}

func (f *fakeProber) Probe(_ context.Context, url string, _ time.Duration) bool {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic[url] {
		panic("boom")
	}
	return !f.down[url]
}

type hookServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
	status int
}

func newHookServer(t *testing.T, status int) *hookServer {
	t.Helper()
	hs := &hookServer{status: status}
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		hs.mu.Lock()
		hs.bodies = append(hs.bodies, string(b))
		hs.mu.Unlock()
		w.WriteHeader(hs.status)
	}))
	t.Cleanup(hs.Close)
	return hs
}

func (h *hookServer) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.bodies...)
}

type fixture struct {
	store  *memory.Store
	prober *fakeProber
	hub    *hub.Hub
	conn   *hub.Conn
	sched  *Scheduler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := memory.New()
	h := hub.New(nil)
	conn := hub.NewConn(16)
	h.Register(conn)
	p := newFakeProber()
	s := New(nil, Deps{
		Registry: store,
		Status:   store,
		Prober:   p,
		Recorder: history.NewRecorder(store),
		Notifier: notify.NewNotifier(store, nil, nil),
		Webhooks: webhook.NewDispatcher(nil, time.Second),
		Hub:      h,
	}, cfg)
	return &fixture{store: store, prober: p, hub: h, conn: conn, sched: s}
}

func (f *fixture) addMonitor(t *testing.T, m *domain.Monitor) {
	t.Helper()
	if err := f.store.Create(context.Background(), m); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func drain(c *hub.Conn) []hub.Message {
	var out []hub.Message
	for {
		select {
		case m := <-c.Outbox():
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestRunOnce_UpToDownThenSteadyDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	hook := newHookServer(t, http.StatusOK)

	m := &domain.Monitor{
		UserID:   "U1",
		Name:     "api",
		URL:      "https://api.test/health",
		Interval: 60,
		Timeout:  10,
		Active:   true,
		Status:   domain.StatusUp,
		Webhook: &domain.Webhook{
			URL:     hook.URL,
			Message: domain.WebhookMessage{Down: json.RawMessage(`{"text":"x"}`)},
		},
	}
	f.addMonitor(t, m)
	f.prober.set(m.URL, false)

	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.Checked != 1 || rep.Changed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if o := rep.Outcomes[0]; o.Previous != domain.StatusUp || o.Status != domain.StatusDown || o.Err != nil {
		t.Fatalf("unexpected outcome: %+v", o)
	}

	evs, _ := f.store.ListEvents(ctx, m.ID, 0)
	if len(evs) != 1 || evs[0].Status != domain.StatusDown {
		t.Fatalf("events = %+v", evs)
	}
	notes, _ := f.store.ListNotifications(ctx, "U1", 0)
	if len(notes) != 1 || notes[0].Message != "Monitor api is DOWN" || notes[0].Sent {
		t.Fatalf("notifications = %+v", notes)
	}
	if got := hook.received(); len(got) != 1 || got[0] != `{"text":"x"}` {
		t.Fatalf("webhook bodies = %v", got)
	}
	msgs := drain(f.conn)
	if len(msgs) != 1 {
		t.Fatalf("broadcasts = %d", len(msgs))
	}
	if sc, ok := msgs[0].(hub.StatusChange); !ok || sc.MonitorID != m.ID || sc.Status != domain.StatusDown {
		t.Fatalf("unexpected broadcast %#v", msgs[0])
	}
	got, _ := f.store.Get(ctx, m.ID)
	if got.Status != domain.StatusDown || got.LastCheck == nil {
		t.Fatalf("status not updated: %+v", got)
	}
	firstCheck := *got.LastCheck

	// still down: only lastCheck moves
	f.sched.now = func() time.Time { return firstCheck.Add(time.Minute) }
	rep, err = f.sched.RunOnce(ctx, true)
	if err != nil || rep.Changed != 0 {
		t.Fatalf("second tick: %+v err=%v", rep, err)
	}
	evs, _ = f.store.ListEvents(ctx, m.ID, 0)
	notes, _ = f.store.ListNotifications(ctx, "U1", 0)
	if len(evs) != 1 || len(notes) != 1 || len(hook.received()) != 1 || len(drain(f.conn)) != 0 {
		t.Fatalf("repeat DOWN produced side effects")
	}
	got, _ = f.store.Get(ctx, m.ID)
	if !got.LastCheck.After(firstCheck) {
		t.Fatalf("lastCheck not refreshed")
	}
}

func TestRunOnce_NewMonitorNeverFiresFirstObservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	m := &domain.Monitor{UserID: "U1", Name: "fresh", URL: "https://fresh.test", Interval: 60, Timeout: 10, Active: true}
	f.addMonitor(t, m)

	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil || rep.Changed != 0 {
		t.Fatalf("first observation fired: %+v err=%v", rep, err)
	}
	got, _ := f.store.Get(ctx, m.ID)
	if got.Status != domain.StatusUp {
		t.Fatalf("status = %s, want UP", got.Status)
	}

	f.prober.set(m.URL, false)
	rep, _ = f.sched.RunOnce(ctx, true)
	if rep.Changed != 1 {
		t.Fatalf("UP -> DOWN should fire, report %+v", rep)
	}
	// no webhook attached: broadcast still happens
	if len(drain(f.conn)) != 1 {
		t.Fatalf("expected one broadcast")
	}
}

func TestRunOnce_WebhookFailureStillUpdatesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	hook := newHookServer(t, http.StatusInternalServerError)
	m := &domain.Monitor{
		UserID: "U1", Name: "flaky", URL: "https://flaky.test", Interval: 60, Timeout: 10,
		Active: true, Status: domain.StatusDown,
		Webhook: &domain.Webhook{URL: hook.URL},
	}
	f.addMonitor(t, m)

	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	o := rep.Outcomes[0]
	var de *webhook.DeliveryError
	if !o.Changed || !errors.As(o.Err, &de) || o.Error == "" {
		t.Fatalf("expected webhook delivery error in outcome: %+v", o)
	}
	if got := hook.received(); len(got) != 1 || got[0] != `{"message":"Online"}` {
		t.Fatalf("webhook bodies = %v", got)
	}
	if len(drain(f.conn)) != 1 {
		t.Fatalf("broadcast skipped after webhook failure")
	}
	got, _ := f.store.Get(ctx, m.ID)
	if got.Status != domain.StatusUp {
		t.Fatalf("status = %s, want UP", got.Status)
	}
}

type failingRegistry struct{ *memory.Store }

func (failingRegistry) ListActive(context.Context) ([]domain.Monitor, error) {
	return nil, errors.New("registry unavailable")
}

func TestRunOnce_RegistryFailureAbortsTick(t *testing.T) {
	f := newFixture(t, Config{})
	f.sched.deps.Registry = failingRegistry{f.store}

	if _, err := f.sched.RunOnce(context.Background(), true); err == nil {
		t.Fatalf("expected error")
	}
	if f.prober.calls.Load() != 0 {
		t.Fatalf("no monitor should be probed")
	}
}

func TestRunOnce_HonorsInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{HonorInterval: true})
	m := &domain.Monitor{UserID: "U1", Name: "slow", URL: "https://slow.test", Interval: 300, Timeout: 10, Active: true}
	f.addMonitor(t, m)

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	f.sched.now = func() time.Time { return base }
	if rep, _ := f.sched.RunOnce(ctx, false); rep.Checked != 1 {
		t.Fatalf("never-checked monitor should be due: %+v", rep)
	}

	f.sched.now = func() time.Time { return base.Add(30 * time.Second) }
	if rep, _ := f.sched.RunOnce(ctx, false); rep.Checked != 0 || rep.Skipped != 1 {
		t.Fatalf("monitor checked before its interval: %+v", rep)
	}
	if rep, _ := f.sched.RunOnce(ctx, true); rep.Checked != 1 {
		t.Fatalf("force should check everything: %+v", rep)
	}

	f.sched.now = func() time.Time { return base.Add(30*time.Second + 5*time.Minute) }
	if rep, _ := f.sched.RunOnce(ctx, false); rep.Checked != 1 {
		t.Fatalf("monitor should be due after its interval: %+v", rep)
	}
}

func TestRunOnce_PanicIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	bad := &domain.Monitor{UserID: "U1", Name: "bad", URL: "https://bad.test", Interval: 60, Timeout: 10, Active: true}
	good := &domain.Monitor{UserID: "U1", Name: "good", URL: "https://good.test", Interval: 60, Timeout: 10, Active: true}
	f.addMonitor(t, bad)
	f.addMonitor(t, good)
	f.prober.panic[bad.URL] = true

	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil || rep.Checked != 2 {
		t.Fatalf("RunOnce: %+v err=%v", rep, err)
	}
	for _, o := range rep.Outcomes {
		if o.MonitorID == bad.ID && o.Err == nil {
			t.Fatalf("panic not reported")
		}
		if o.MonitorID == good.ID && o.Err != nil {
			t.Fatalf("sibling affected: %v", o.Err)
		}
	}
	got, _ := f.store.Get(ctx, good.ID)
	if got.Status != domain.StatusUp {
		t.Fatalf("sibling status not updated")
	}
}

type blockingProber struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingProber) Probe(ctx context.Context, _ string, _ time.Duration) bool {
	b.started <- struct{}{}
	<-b.release
	return true
}

func TestRunOnce_SkipsMonitorInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	m := &domain.Monitor{UserID: "U1", Name: "busy", URL: "https://busy.test", Interval: 60, Timeout: 10, Active: true}
	f.addMonitor(t, m)
	bp := &blockingProber{started: make(chan struct{}, 1), release: make(chan struct{})}
	f.sched.deps.Prober = bp

	done := make(chan TickReport, 1)
	go func() {
		rep, _ := f.sched.RunOnce(ctx, true)
		done <- rep
	}()
	<-bp.started

	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil || rep.Checked != 0 || rep.Skipped != 1 {
		t.Fatalf("overlapping tick should skip: %+v err=%v", rep, err)
	}
	close(bp.release)
	if first := <-done; first.Checked != 1 {
		t.Fatalf("first tick: %+v", first)
	}
}

func TestRun_ImmediatePassAndStop(t *testing.T) {
	f := newFixture(t, Config{TickInterval: time.Hour})
	f.addMonitor(t, &domain.Monitor{UserID: "U1", Name: "x", URL: "https://x.test", Interval: 60, Timeout: 10, Active: true})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.sched.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for f.prober.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("immediate pass did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestRun_DisabledReturns(t *testing.T) {
	f := newFixture(t, Config{TickInterval: 0})
	f.sched.Run(context.Background())
	if f.prober.calls.Load() != 0 {
		t.Fatalf("disabled scheduler probed")
	}
}

func TestRunOnce_CancelledCheckIsAbandoned(t *testing.T) {
	f := newFixture(t, Config{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)
	f.sched.deps.Prober = probe.NewHTTPProber(nil)

	m := &domain.Monitor{
		UserID: "U1", Name: "slow", URL: slow.URL, Interval: 60, Timeout: 10,
		Active: true, Status: domain.StatusUp,
	}
	f.addMonitor(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	o := rep.Outcomes[0]
	if !o.Abandoned || o.Changed || !errors.Is(o.Err, context.DeadlineExceeded) {
		t.Fatalf("expected abandoned outcome, got %+v", o)
	}

	bg := context.Background()
	if evs, _ := f.store.ListEvents(bg, m.ID, 0); len(evs) != 0 {
		t.Fatalf("cancelled check recorded events: %+v", evs)
	}
	if notes, _ := f.store.ListNotifications(bg, "U1", 0); len(notes) != 0 {
		t.Fatalf("cancelled check created notifications: %+v", notes)
	}
	if msgs := drain(f.conn); len(msgs) != 0 {
		t.Fatalf("cancelled check broadcast %d messages", len(msgs))
	}
	got, _ := f.store.Get(bg, m.ID)
	if got.Status != domain.StatusUp || got.LastCheck != nil {
		t.Fatalf("monitor row touched: %+v", got)
	}
}

var errStoreDown = errors.New("store unavailable")

type failingEvents struct{ *memory.Store }

func (failingEvents) AppendEvent(context.Context, *domain.Event) error { return errStoreDown }

type failingNotes struct{ *memory.Store }

func (failingNotes) CreateNotification(context.Context, *domain.Notification) error {
	return errStoreDown
}

func TestRunOnce_StoreFailuresDoNotBlockOtherSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.sched.deps.Recorder = history.NewRecorder(failingEvents{f.store})
	f.sched.deps.Notifier = notify.NewNotifier(failingNotes{f.store}, nil, nil)
	hook := newHookServer(t, http.StatusOK)

	m := &domain.Monitor{
		UserID: "U1", Name: "api", URL: "https://api.test", Interval: 60, Timeout: 10,
		Active: true, Status: domain.StatusUp,
		Webhook: &domain.Webhook{URL: hook.URL},
	}
	f.addMonitor(t, m)
	f.prober.set(m.URL, false)

	rep, err := f.sched.RunOnce(ctx, true)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	o := rep.Outcomes[0]
	if !o.Changed || !errors.Is(o.Err, errStoreDown) {
		t.Fatalf("expected store error in outcome: %+v", o)
	}
	if got := hook.received(); len(got) != 1 || got[0] != `{"message":"Offline"}` {
		t.Fatalf("webhook bodies = %v", got)
	}
	msgs := drain(f.conn)
	if len(msgs) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(msgs))
	}
	if sc, ok := msgs[0].(hub.StatusChange); !ok || sc.Status != domain.StatusDown {
		t.Fatalf("unexpected broadcast %#v", msgs[0])
	}
	got, _ := f.store.Get(ctx, m.ID)
	if got.Status != domain.StatusDown || got.LastCheck == nil {
		t.Fatalf("status not persisted: %+v", got)
	}
}
