package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"

	"live-service/internal/adapter"
	"live-service/internal/adapter/webapp"
	"live-service/internal/admin"
	"live-service/internal/embed"
	"live-service/internal/engine"
	"live-service/internal/media"
	"live-service/internal/page"
	"live-service/internal/render"
	"live-service/internal/shared/httpx"
)

const testSecret = "livectl-secret"

func TestGenerateIsConsistent(t *testing.T) {
	events := generate(gofakeit.New(42), "c1", seedOptions{count: 200, editRatio: 0.2, deleteRatio: 0.1})
	if len(events) != 200 {
		t.Fatalf("generated %d events", len(events))
	}
	live := map[string]bool{}
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		switch ev.Type {
		case engine.KindAdd:
			if live[ev.MessageID] {
				t.Fatalf("event %d re-adds %s", i, ev.MessageID)
			}
			live[ev.MessageID] = true
		case engine.KindChange, engine.KindDelete:
			if !live[ev.MessageID] {
				t.Fatalf("event %d targets unknown message %s", i, ev.MessageID)
			}
			if ev.Type == engine.KindDelete {
				delete(live, ev.MessageID)
			}
		}
	}

	again := generate(gofakeit.New(42), "c1", seedOptions{count: 200, editRatio: 0.2, deleteRatio: 0.1})
	for i := range events {
		if events[i].MessageID != again[i].MessageID || events[i].Text != again[i].Text {
			t.Fatal("same seed produced a different stream")
		}
	}
}

func newServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	pages := page.NewRegistry(nil, nil)
	eng := engine.New(pages, render.NewHTML(), nil, media.NewProcessor(nil, nil, nil), embed.MustDefault(), nil)
	mux := http.NewServeMux()
	admin.NewHandler(eng, nil).Routes(mux, httpx.AuthMiddleware([]byte(testSecret)))
	mux.Handle("POST /webapp/events", adapter.NewHandler(webapp.New(testSecret), eng, nil, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, eng
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL, "--secret", testSecret}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPagesAndSeed(t *testing.T) {
	srv, eng := newServer(t)

	if out, err := run(t, srv, "pages", "create", "c1"); err != nil || !strings.Contains(out, "created c1") {
		t.Fatalf("create: %q, %v", out, err)
	}
	if _, err := run(t, srv, "pages", "create", "c1"); err == nil {
		t.Fatal("duplicate create succeeded")
	}
	if _, err := run(t, srv, "seed", "c1", "-n", "15", "--interval", "0", "--seed", "7"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, err := eng.Pages().Get("c1")
	if err != nil {
		t.Fatal(err)
	}
	posts, _ := p.VisiblePosts()
	if len(posts) == 0 {
		t.Fatal("seeding produced no posts")
	}

	out, err := run(t, srv, "pages", "show", "c1")
	if err != nil || !strings.Contains(out, posts[0].ID) {
		t.Fatalf("show: %q, %v", out, err)
	}
	if out, err := run(t, srv, "posts", "hide", "c1", posts[0].ID); err != nil || !strings.Contains(out, "visible=false") {
		t.Fatalf("hide: %q, %v", out, err)
	}
	if _, err := run(t, srv, "posts", "delete", "c1", posts[0].ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := run(t, srv, "pages", "delete", "c1"); err != nil {
		t.Fatalf("delete page: %v", err)
	}
	if out, err := run(t, srv, "pages", "list"); err != nil || strings.Contains(out, "c1") {
		t.Fatalf("list after delete: %q, %v", out, err)
	}
}
