package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestWS_SnapshotThenStatusChange(t *testing.T) {
	e := setup(t)
	e.addMonitor(t, "api", "u1")

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?api_key=pub_test"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got envelope
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if got.Type != "MONITOR_UPDATE" || !strings.Contains(string(got.Data), `"id":"api"`) {
		t.Fatalf("unexpected snapshot %s %s", got.Type, got.Data)
	}

	if n := e.hub.BroadcastStatusChange("api", domain.StatusDown); n != 1 {
		t.Fatalf("delivered to %d subscribers", n)
	}
	if err := ws.ReadJSON(&got); err != nil {
		t.Fatalf("read status change: %v", err)
	}
	if got.Type != "STATUS_CHANGE" || string(got.Data) != `{"monitorId":"api","status":"DOWN"}` {
		t.Fatalf("unexpected message %s %s", got.Type, got.Data)
	}
}

func TestWS_RequiresKey(t *testing.T) {
	e := setup(t)
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial without key should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %v", resp)
	}
}

func TestWS_DisconnectUnregisters(t *testing.T) {
	e := setup(t)
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?api_key=pub_test"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, func() bool { return e.hub.Len() == 1 })
	ws.Close()
	waitFor(t, func() bool { return e.hub.Len() == 0 })
}

func TestSSE_SnapshotThenStatusChange(t *testing.T) {
	e := setup(t)
	e.addMonitor(t, "api", "u1")

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/stream", nil)
	req.Header.Set("X-API-Key", "pub_test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	data := func(event string) string {
		t.Helper()
		timeout := time.After(5 * time.Second)
		seen := false
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %s", event)
				}
				if l == "event: "+event {
					seen = true
				} else if seen && strings.HasPrefix(l, "data: ") {
					return strings.TrimPrefix(l, "data: ")
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", event)
			}
		}
	}

	if d := data("MONITOR_UPDATE"); !strings.Contains(d, `"type":"MONITOR_UPDATE"`) {
		t.Fatalf("unexpected snapshot %s", d)
	}
	e.hub.BroadcastStatusChange("api", domain.StatusUp)
	if d := data("STATUS_CHANGE"); d != `{"type":"STATUS_CHANGE","data":{"monitorId":"api","status":"UP"}}` {
		t.Fatalf("unexpected status change %s", d)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
