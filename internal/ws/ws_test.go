package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-service/internal/bus"
	"live-service/internal/page"
)

func setup(t *testing.T) (*httptest.Server, *bus.LocalBus) {
	t.Helper()
	pages := page.NewRegistry(nil, nil)
	if _, err := pages.Create(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	b := bus.NewLocalBus(nil)
	mux := http.NewServeMux()
	NewHandler(pages, b, nil).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestViewerReceivesDeltas(t *testing.T) {
	srv, b := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/channel/c1/"

	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return b.Subscribers("c1") == 1 })

	if err := b.Publish(context.Background(), "c1", bus.RenderDelta("p1", "<p>hi</p>")); err != nil {
		t.Fatal(err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var d bus.Delta
	if err := json.Unmarshal(msg, &d); err != nil {
		t.Fatal(err)
	}
	if d.Renders["p1"] != "<p>hi</p>" {
		t.Fatalf("delta = %+v", d)
	}

	_ = c.Close()
	waitFor(t, func() bool { return b.Subscribers("c1") == 0 })
}

func TestUnknownChannel(t *testing.T) {
	srv, _ := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/channel/nope/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp = %v", resp)
	}
}

func TestSendReportsSlowConsumer(t *testing.T) {
	c := &conn{send: make(chan []byte, 1), done: make(chan struct{})}
	if err := c.Send([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("b")); err != bus.ErrSlowConsumer {
		t.Fatalf("err = %v, want ErrSlowConsumer", err)
	}
	_ = c.Close()
	_ = c.Close()
	if err := c.Send([]byte("c")); err == nil {
		t.Fatal("send on closed conn succeeded")
	}
}
