// Package adapter receives webhooks from chat platforms, normalizes them
// into engine events and dispatches them.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"live-service/internal/bus"
	"live-service/internal/engine"
	"live-service/internal/idem"
	"live-service/internal/metrics"
	"live-service/internal/shared/httpx"
)

const (
	maxBody  = 1 << 20
	dedupTTL = 24 * time.Hour
)

var (
	ErrVerification = errors.New("request verification failed")
	ErrMalformed    = errors.New("malformed payload")
)

// Adapter is one upstream platform.
type Adapter interface {
	Name() string
	// Verify authenticates the raw request before its body is parsed.
	Verify(r *http.Request, body []byte) error
	// Normalize turns a verified body into events. Errors wrap ErrMalformed
	// when the payload cannot be understood.
	Normalize(ctx context.Context, body []byte) (Outcome, error)
}

type Outcome struct {
	Events []engine.Event
	// Challenge is echoed back verbatim and no events are dispatched.
	Challenge string
	// DedupKey identifies the delivery; retries with the same key are
	// acknowledged without dispatch.
	DedupKey string
}

// Dispatcher applies a normalized event. *engine.Engine satisfies it.
type Dispatcher interface {
	Apply(ctx context.Context, ev engine.Event) (*bus.Delta, error)
}

type Handler struct {
	adapter Adapter
	engine  Dispatcher
	seen    idem.Store
	log     *slog.Logger
}

// NewHandler serves a. A nil store disables deduplication.
func NewHandler(a Adapter, d Dispatcher, seen idem.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{adapter: a, engine: d, seen: seen, log: logger.With("adapter", a.Name())}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
	httpx.Wrap(h.serve).ServeHTTP(rec, r)
	metrics.AdapterRequests.WithLabelValues(h.adapter.Name(), strconv.Itoa(rec.code)).Inc()
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return httpx.Errorf(http.StatusRequestEntityTooLarge, "body_too_large", err)
	}
	if err := h.adapter.Verify(r, body); err != nil {
		h.log.Warn("verification failed", "remote", httpx.ClientIP(r), "error", err)
		return httpx.Errorf(http.StatusForbidden, "verification_failed", ErrVerification)
	}
	out, err := h.adapter.Normalize(r.Context(), body)
	if err != nil {
		h.log.Warn("malformed payload", "error", err)
		return httpx.BadRequest(err)
	}
	if out.Challenge != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, out.Challenge)
		return nil
	}
	if out.DedupKey != "" && h.seen != nil {
		fresh, err := h.seen.PutNX(r.Context(), h.adapter.Name()+":"+out.DedupKey, dedupTTL)
		if err != nil {
			h.log.Warn("dedup store unavailable", "error", err)
		} else if !fresh {
			h.log.Debug("duplicate delivery acknowledged", "dedup_key", out.DedupKey)
			httpx.WriteJSON(w, map[string]string{"status": "duplicate"}, http.StatusOK)
			return nil
		}
	}

	// upstream retries on slow answers, so the request's cancellation must not
	// abort a half-applied batch
	ctx := context.WithoutCancel(r.Context())
	for _, ev := range out.Events {
		if _, err := h.engine.Apply(ctx, ev); err != nil {
			h.log.Error("apply event failed",
				"type", ev.Type, "channel_id", ev.ChannelID, "message_id", ev.MessageID, "error", err)
		}
	}
	httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	return nil
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (c *codeRecorder) WriteHeader(code int) {
	c.code = code
	c.ResponseWriter.WriteHeader(code)
}

// KafkaEvents decodes inbound events from a Kafka topic and applies them.
// Undecodable messages are logged and skipped.
func KafkaEvents(d Dispatcher, logger *slog.Logger) func(ctx context.Context, topic string, key, value []byte) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("adapter", "kafka")
	return func(ctx context.Context, topic string, key, value []byte) error {
		var ev engine.Event
		if err := json.Unmarshal(value, &ev); err != nil {
			log.Warn("undecodable event skipped", "topic", topic, "key", string(key), "error", err)
			return nil
		}
		if _, err := d.Apply(ctx, ev); err != nil {
			return fmt.Errorf("apply %s %s/%s: %w", ev.Type, ev.ChannelID, ev.MessageID, err)
		}
		metrics.AdapterRequests.WithLabelValues("kafka", "200").Inc()
		return nil
	}
}
