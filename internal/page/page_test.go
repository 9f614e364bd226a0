package page

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-service/internal/livepost"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func add(t *testing.T, p *Page, msg string) time.Time {
	t.Helper()
	at, changed, err := p.Mutate(func(seq *livepost.Sequence, at time.Time) (bool, error) {
		_, err := seq.Insert(&livepost.Post{ID: "p-" + msg, MessageID: msg, CreatedAt: at, Visible: true})
		return err == nil, err
	})
	if err != nil || !changed {
		t.Fatalf("add %s: changed=%v err=%v", msg, changed, err)
	}
	return at
}

func TestWatermarkAdvancesWhenClockStalls(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New("c1", clk.now)
	w0 := p.LastUpdatedAt()

	w1 := add(t, p, "m1")
	w2 := add(t, p, "m2")
	if !w1.After(w0) || !w2.After(w1) {
		t.Fatalf("watermark not strictly increasing: %v %v %v", w0, w1, w2)
	}
	if w2.Sub(w1) != time.Microsecond {
		t.Fatalf("stalled clock step = %v, want 1µs", w2.Sub(w1))
	}

	clk.t = clk.t.Add(-time.Hour)
	w3 := add(t, p, "m3")
	if !w3.After(w2) {
		t.Fatal("watermark regressed with clock")
	}
}

func TestMutateWithoutChangeKeepsWatermark(t *testing.T) {
	p := New("c1", nil)
	add(t, p, "m1")
	before := p.LastUpdatedAt()
	ch := p.Changed()

	_, changed, err := p.Mutate(func(*livepost.Sequence, time.Time) (bool, error) { return false, nil })
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if !p.LastUpdatedAt().Equal(before) {
		t.Fatal("watermark moved on no-op")
	}
	select {
	case <-ch:
		t.Fatal("change notification fired on no-op")
	default:
	}
}

func TestChangedFiresOnMutation(t *testing.T) {
	p := New("c1", nil)
	ch := p.Changed()
	add(t, p, "m1")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("change notification not fired")
	}
	if p.Changed() == ch {
		t.Fatal("change channel not replaced")
	}
}

func TestUpdatesSince(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New("c1", clk.now)

	clk.t = clk.t.Add(time.Second)
	add(t, p, "old")
	clk.t = clk.t.Add(time.Second)
	add(t, p, "edited")
	clk.t = clk.t.Add(time.Second)
	add(t, p, "hidden")
	mark := p.LastUpdatedAt()

	clk.t = clk.t.Add(time.Second)
	add(t, p, "new")
	clk.t = clk.t.Add(time.Second)
	_, _, err := p.Mutate(func(seq *livepost.Sequence, at time.Time) (bool, error) {
		e, _ := seq.ByMessageID("edited")
		e.ModifiedAt = &at
		h, _ := seq.ByMessageID("hidden")
		h.Visible = false
		h.ModifiedAt = &at
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	updates, current, watermark := p.UpdatesSince(mark)
	if _, ok := updates["p-new"]; !ok {
		t.Error("new post missing from updates")
	}
	if _, ok := updates["p-edited"]; !ok {
		t.Error("edited post missing from updates")
	}
	if _, ok := updates["p-old"]; ok {
		t.Error("unchanged post in updates")
	}
	if _, ok := updates["p-hidden"]; ok {
		t.Error("hidden post in updates")
	}
	if len(updates) != 2 {
		t.Errorf("updates = %d, want 2", len(updates))
	}
	want := []string{"p-old", "p-edited", "p-new"}
	if len(current) != len(want) {
		t.Fatalf("current = %v, want %v", current, want)
	}
	for i := range want {
		if current[i] != want[i] {
			t.Fatalf("current = %v, want %v", current, want)
		}
	}
	if !watermark.Equal(p.LastUpdatedAt()) {
		t.Error("watermark mismatch")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := New("c1", nil)
	add(t, p, "m1")
	add(t, p, "m2")
	s := p.Snapshot()

	q, err := FromSnapshot(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !q.LastUpdatedAt().Equal(p.LastUpdatedAt()) {
		t.Fatal("watermark lost")
	}
	q.Read(func(seq *livepost.Sequence, _ time.Time) {
		if seq.Len() != 2 || seq.IndexOf("m2") != 1 {
			t.Fatalf("restored sequence wrong, len=%d", seq.Len())
		}
	})
}

func TestSnapshotWithRepeatedMessage(t *testing.T) {
	at := time.UnixMicro(1714564800000000).UTC()
	s := Snapshot{ChannelID: "c1", LastUpdatedAt: at, Posts: []*livepost.Post{
		{ID: "p1", MessageID: "m1", CreatedAt: at, Visible: true},
		{ID: "p2", MessageID: "m1", CreatedAt: at, Visible: true},
		{ID: "p3", MessageID: "m2", CreatedAt: at, Visible: true},
	}}
	q, err := FromSnapshot(s, nil)
	if !errors.Is(err, livepost.ErrDuplicateMessage) {
		t.Fatalf("err = %v, want ErrDuplicateMessage", err)
	}
	if q == nil {
		t.Fatal("page not returned")
	}
	q.Read(func(seq *livepost.Sequence, _ time.Time) {
		if seq.Len() != 2 {
			t.Fatalf("len = %d, want 2", seq.Len())
		}
	})
}

type memRepo struct {
	saved   map[string]Snapshot
	deleted []string
}

func (m *memRepo) Save(_ context.Context, s Snapshot) error {
	m.saved[s.ChannelID] = s
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.saved, id)
	return nil
}

func (m *memRepo) LoadAll(context.Context) ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(m.saved))
	for _, s := range m.saved {
		out = append(out, s)
	}
	return out, nil
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{saved: map[string]Snapshot{}}
	r := NewRegistry(repo, nil)

	if _, err := r.Create(ctx, "c1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Create(ctx, "c1"); !errors.Is(err, ErrPageExists) {
		t.Fatalf("duplicate create err = %v", err)
	}
	if _, err := r.Create(ctx, "c0"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ids := r.List(); len(ids) != 2 || ids[0] != "c0" {
		t.Fatalf("list = %v", ids)
	}
	if _, ok := repo.saved["c1"]; !ok {
		t.Fatal("page not persisted on create")
	}

	restored := NewRegistry(repo, nil)
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := restored.Get("c1"); err != nil {
		t.Fatalf("get restored: %v", err)
	}

	if err := r.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.Get("c1"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}
	if err := r.Delete(ctx, "c1"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}
