package idem

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisPutNX(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	ok, err := s.PutNX(ctx, "slack:Ev1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first PutNX = %v, %v", ok, err)
	}
	ok, err = s.PutNX(ctx, "slack:Ev1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second PutNX = %v, %v", ok, err)
	}
	if !mr.Exists("idem:slack:Ev1") {
		t.Fatal("key not prefixed")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := s.PutNX(ctx, "slack:Ev1", time.Minute); !ok {
		t.Fatal("key should expire")
	}
}

func TestMemoryPutNX(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := m.PutNX(ctx, "k", time.Second); !ok {
		t.Fatal("first put rejected")
	}
	if ok, _ := m.PutNX(ctx, "k", time.Second); ok {
		t.Fatal("duplicate accepted")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := m.PutNX(ctx, "k", time.Second); !ok {
		t.Fatal("expired key rejected")
	}
}
