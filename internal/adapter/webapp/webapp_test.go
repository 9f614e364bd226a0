package webapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live-service/internal/adapter"
	"live-service/internal/engine"
	"live-service/internal/shared/httpx"
)

func TestVerify(t *testing.T) {
	a := New("s3cret")
	tok, err := httpx.SignToken([]byte("s3cret"), "webapp", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webapp/events", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if err := a.Verify(req, nil); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}

	other, _ := httpx.SignToken([]byte("other"), "webapp", time.Minute)
	req.Header.Set("Authorization", "Bearer "+other)
	if err := a.Verify(req, nil); err == nil {
		t.Fatal("foreign token accepted")
	}
	req.Header.Del("Authorization")
	if err := a.Verify(req, nil); err == nil {
		t.Fatal("missing token accepted")
	}
}

func TestNormalize(t *testing.T) {
	a := New("s3cret")
	tests := []struct {
		body string
		kind engine.Kind
		id   string
	}{
		{`{"update_type":1,"channel":"general","id":7,"content":"hi"}`, engine.KindAdd, "7"},
		{`{"update_type":2,"channel":"general","id":"7","content":"hi!"}`, engine.KindChange, "7"},
		{`{"update_type":3,"channel":"general","id":7}`, engine.KindDelete, "7"},
	}
	for _, tc := range tests {
		out, err := a.Normalize(context.Background(), []byte(tc.body))
		if err != nil {
			t.Fatalf("%s: %v", tc.body, err)
		}
		ev := out.Events[0]
		if ev.Type != tc.kind || ev.MessageID != tc.id || ev.ChannelID != "general" {
			t.Fatalf("%s: event = %+v", tc.body, ev)
		}
	}

	for _, bad := range []string{
		`{"update_type":9,"channel":"general","id":1}`,
		`{"update_type":1,"id":1}`,
		`not json`,
	} {
		if _, err := a.Normalize(context.Background(), []byte(bad)); !errors.Is(err, adapter.ErrMalformed) {
			t.Errorf("%s: err = %v, want ErrMalformed", bad, err)
		}
	}
}
