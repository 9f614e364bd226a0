package redisrepo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-service/internal/livepost"
	"live-service/internal/page"
)

func TestRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	ctx := context.Background()

	at := time.UnixMicro(1714564800123456).UTC()
	s := page.Snapshot{
		ChannelID:     "c1",
		LastUpdatedAt: at,
		Posts: []*livepost.Post{{
			ID: "p1", MessageID: "m1", CreatedAt: at, Visible: true,
			Content: []livepost.Block{{ID: "b1", Kind: livepost.KindText, Text: "hi"}},
		}},
	}
	if err := repo.Save(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, page.Snapshot{ChannelID: "c2", LastUpdatedAt: at}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "c2"); err != nil {
		t.Fatal(err)
	}

	got, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ChannelID != "c1" || !got[0].LastUpdatedAt.Equal(at) {
		t.Fatalf("snapshots = %+v", got)
	}
	if len(got[0].Posts) != 1 || got[0].Posts[0].Content[0].Text != "hi" {
		t.Fatalf("posts = %+v", got[0].Posts)
	}
}

func TestRegistryRestore(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	ctx := context.Background()

	first := page.NewRegistry(repo, nil)
	if _, err := first.Create(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	second := page.NewRegistry(repo, nil)
	if err := second.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Get("c1"); err != nil {
		t.Fatalf("restored page missing: %v", err)
	}
}
