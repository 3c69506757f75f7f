package hub

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

type fakeSub struct {
	id    string
	ready bool
	err   error
	mu    sync.Mutex
	got   []Message
}

func (f *fakeSub) ID() string { return f.id }
func (f *fakeSub) Ready() bool { return f.ready }
func (f *fakeSub) Send(m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, m)
	return nil
}

func TestHub_ZeroSubscribersIsNoop(t *testing.T) {
	h := New(nil)
	if n := h.BroadcastStatusChange("M1", domain.StatusDown); n != 0 {
		t.Fatalf("delivered %d with no subscribers", n)
	}
}

func TestHub_SkipsNotReadyAndFailing(t *testing.T) {
	h := New(nil)
	good := &fakeSub{id: "a", ready: true}
	closed := &fakeSub{id: "b", ready: false}
	broken := &fakeSub{id: "c", ready: true, err: errors.New("write failed")}
	other := &fakeSub{id: "d", ready: true}
	for _, s := range []*fakeSub{good, closed, broken, other} {
		h.Register(s)
	}

	if n := h.BroadcastStatusChange("M1", domain.StatusDown); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if len(closed.got) != 0 {
		t.Fatalf("not-ready subscriber received a message")
	}
	for _, s := range []*fakeSub{good, other} {
		if len(s.got) != 1 {
			t.Fatalf("subscriber %s got %d messages", s.id, len(s.got))
		}
		sc, ok := s.got[0].(StatusChange)
		if !ok || sc.MonitorID != "M1" || sc.Status != domain.StatusDown {
			t.Fatalf("unexpected message %#v", s.got[0])
		}
	}

	h.Unregister(good)
	if h.Len() != 3 {
		t.Fatalf("Len = %d after unregister", h.Len())
	}
}

func TestEncode(t *testing.T) {
	b, err := Encode(StatusChange{MonitorID: "M1", Status: domain.StatusUp})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"STATUS_CHANGE","data":{"monitorId":"M1","status":"UP"}}` {
		t.Fatalf("unexpected encoding %s", b)
	}

	b, err = Encode(MonitorUpdate{Monitor: domain.Monitor{ID: "M2", Name: "api"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), `{"type":"MONITOR_UPDATE","data":{"id":"M2"`) {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestConn_BufferAndClose(t *testing.T) {
	c := NewConn(1)
	if !c.Ready() {
		t.Fatalf("new conn should be ready")
	}
	if err := c.Send(StatusChange{MonitorID: "M1"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send(StatusChange{MonitorID: "M2"}); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("want ErrSlowConsumer, got %v", err)
	}
	c.Close()
	c.Close()
	if c.Ready() {
		t.Fatalf("closed conn should not be ready")
	}
	if err := c.Send(StatusChange{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if msg, ok := <-c.Outbox(); !ok || msg.(StatusChange).MonitorID != "M1" {
		t.Fatalf("buffered message lost")
	}
	if _, ok := <-c.Outbox(); ok {
		t.Fatalf("outbox should be closed")
	}
}

func TestHub_ConnWithHub(t *testing.T) {
	h := New(nil)
	c := NewConn(4)
	h.Register(c)
	if n := h.Broadcast(MonitorUpdate{Monitor: domain.Monitor{ID: "M1"}}); n != 1 {
		t.Fatalf("delivered = %d", n)
	}
	c.Close()
	if n := h.BroadcastStatusChange("M1", domain.StatusUp); n != 0 {
		t.Fatalf("closed conn should be skipped, delivered %d", n)
	}
}
