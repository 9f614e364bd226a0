package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recorder struct {
	mu       sync.Mutex
	payloads [][]byte
	full     bool
	closed   bool
	got      chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 16)} }

func (r *recorder) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return ErrSlowConsumer
	}
	r.payloads = append(r.payloads, p)
	select {
	case r.got <- struct{}{}:
	default:
	}
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.payloads...)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no payload received")
	}
}

type fakeTransport struct {
	mu           sync.Mutex
	subscribes   map[string]int
	unsubscribes map[string]int
	msgs         chan Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribes:   map[string]int{},
		unsubscribes: map[string]int{},
		msgs:         make(chan Message, 16),
	}
}

func (f *fakeTransport) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes[topic]++
	return nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes[topic]++
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, payload []byte) error {
	f.msgs <- Message{Topic: topic, Payload: payload}
	return nil
}

func (f *fakeTransport) Messages() <-chan Message { return f.msgs }
func (f *fakeTransport) Close() error             { return nil }

func (f *fakeTransport) counts(topic string) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[topic], f.unsubscribes[topic]
}

func TestRegistryTransitions(t *testing.T) {
	r := NewRegistry()
	a, b := newRecorder(), newRecorder()

	if added, first := r.Add("c1", a); !added || !first {
		t.Fatalf("first add = %v,%v", added, first)
	}
	if added, _ := r.Add("c1", a); added {
		t.Fatal("duplicate add reported added")
	}
	if _, first := r.Add("c1", b); first {
		t.Fatal("second add reported first")
	}
	if removed, last := r.Remove("c1", a); !removed || last {
		t.Fatalf("remove a = %v,%v", removed, last)
	}
	if removed, last := r.Remove("c1", b); !removed || !last {
		t.Fatalf("remove b = %v,%v", removed, last)
	}
	if removed, _ := r.Remove("c1", b); removed {
		t.Fatal("double remove reported removed")
	}
	if r.Count("c1") != 0 {
		t.Fatal("channel not emptied")
	}
}

func TestLocalBusFanOut(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus(nil)
	c1, c2, other := newRecorder(), newRecorder(), newRecorder()
	_ = b.Subscribe(ctx, "c1", c1)
	_ = b.Subscribe(ctx, "c1", c2)
	_ = b.Subscribe(ctx, "c2", other)

	if err := b.Publish(ctx, "c1", RenderDelta("p1", "<p>hi</p>")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for _, c := range []*recorder{c1, c2} {
		got := c.received()
		if len(got) != 1 {
			t.Fatalf("received %d payloads, want 1", len(got))
		}
		var d Delta
		if err := json.Unmarshal(got[0], &d); err != nil {
			t.Fatal(err)
		}
		if d.Renders["p1"] != "<p>hi</p>" || len(d.Removals) != 0 {
			t.Fatalf("delta = %+v", d)
		}
	}
	if len(other.received()) != 0 {
		t.Fatal("delta leaked to another channel")
	}
}

func TestLocalBusClosesSlowConsumer(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBus(nil)
	slow, ok := newRecorder(), newRecorder()
	slow.full = true
	_ = b.Subscribe(ctx, "c1", slow)
	_ = b.Subscribe(ctx, "c1", ok)

	_ = b.Publish(ctx, "c1", RemovalDelta("p1"))
	if !slow.closed {
		t.Fatal("slow consumer not closed")
	}
	if b.Subscribers("c1") != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers("c1"))
	}
	if len(ok.received()) != 1 {
		t.Fatal("healthy consumer missed delta")
	}
}

func TestRelayBusSharesOneUpstreamSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := newFakeTransport()
	b := NewRelayBus(ft, nil)
	go func() { _ = b.Run(ctx) }()

	conn1, conn2 := newRecorder(), newRecorder()
	if err := b.Subscribe(ctx, "c1", conn1); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(ctx, "c1", conn2); err != nil {
		t.Fatal(err)
	}
	if subs, _ := ft.counts("group_c1"); subs != 1 {
		t.Fatalf("upstream subscribes = %d, want 1", subs)
	}

	if err := b.Publish(ctx, "c1", RenderDelta("p1", "x")); err != nil {
		t.Fatal(err)
	}
	conn1.wait(t)
	conn2.wait(t)
	if len(conn1.received()) != 1 || len(conn2.received()) != 1 {
		t.Fatalf("deliveries = %d,%d, want 1,1", len(conn1.received()), len(conn2.received()))
	}

	_ = b.Unsubscribe(ctx, "c1", conn1)
	if _, unsubs := ft.counts("group_c1"); unsubs != 0 {
		t.Fatal("upstream released while a subscriber remains")
	}
	_ = b.Unsubscribe(ctx, "c1", conn2)
	_ = b.Unsubscribe(ctx, "c1", conn2)
	if _, unsubs := ft.counts("group_c1"); unsubs != 1 {
		t.Fatalf("upstream unsubscribes = %d, want 1", unsubs)
	}

	_ = b.Subscribe(ctx, "c1", conn1)
	if subs, _ := ft.counts("group_c1"); subs != 2 {
		t.Fatalf("resubscribe count = %d, want 2", subs)
	}
}

func TestRelayBusPreservesOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := newFakeTransport()
	b := NewRelayBus(ft, nil)
	go func() { _ = b.Run(ctx) }()

	c := newRecorder()
	_ = b.Subscribe(ctx, "c1", c)
	for _, id := range []string{"a", "b", "c"} {
		_ = b.Publish(ctx, "c1", RenderDelta(id, id))
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(c.received()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := c.received()
	if len(got) != 3 {
		t.Fatalf("received %d, want 3", len(got))
	}
	for i, id := range []string{"a", "b", "c"} {
		var d Delta
		_ = json.Unmarshal(got[i], &d)
		if _, ok := d.Renders[id]; !ok {
			t.Fatalf("delta %d = %+v, want %s", i, d, id)
		}
	}
}

func TestRelayBusOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newNode := func() *RelayBus {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		tr := NewRedisTransport(rdb, nil)
		t.Cleanup(func() { _ = tr.Close() })
		b := NewRelayBus(tr, nil)
		go func() { _ = b.Run(ctx) }()
		return b
	}
	publisher, viewer := newNode(), newNode()

	conn := newRecorder()
	if err := viewer.Subscribe(ctx, "c1", conn); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The subscription is confirmed asynchronously; publish until it lands.
	deadline := time.Now().Add(3 * time.Second)
	for len(conn.received()) == 0 && time.Now().Before(deadline) {
		if err := publisher.Publish(ctx, "c1", RenderDelta("p1", "<p>x</p>")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	got := conn.received()
	if len(got) == 0 {
		t.Fatal("delta not relayed through redis")
	}
	var d Delta
	if err := json.Unmarshal(got[0], &d); err != nil {
		t.Fatal(err)
	}
	if d.Renders["p1"] != "<p>x</p>" {
		t.Fatalf("delta = %+v", d)
	}

	if err := viewer.Unsubscribe(ctx, "c1", conn); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}
