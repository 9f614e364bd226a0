package polling

import (
	"errors"
	"net/http"
	"strconv"

	"live-service/internal/page"
	"live-service/internal/shared/httpx"
)

const LastUpdateHeader = "Last-Update-At"

type Handler struct {
	r *Responder
}

func NewHandler(r *Responder) *Handler { return &Handler{r: r} }

// Routes registers the polling endpoints. limit wraps the GET endpoints.
func (h *Handler) Routes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /polling/{channel_id}/{$}", httpx.Wrap(h.StartInterval))
	mux.Handle("HEAD /polling/{channel_id}/{$}", httpx.Wrap(h.Probe))
	mux.Handle("GET /polling/{channel_id}/{$}", limit(httpx.Wrap(h.Fetch)))
	mux.Handle("POST /long-polling/{channel_id}/{$}", httpx.Wrap(h.StartLong))
	mux.Handle("GET /long-polling/{channel_id}/{$}", limit(httpx.Wrap(h.LongPoll)))
}

func (h *Handler) StartInterval(w http.ResponseWriter, r *http.Request) error {
	return h.start(w, r, true)
}

func (h *Handler) StartLong(w http.ResponseWriter, r *http.Request) error {
	return h.start(w, r, false)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, withInterval bool) error {
	hs, err := h.r.Start(r.PathValue("channel_id"), withInterval)
	if err != nil {
		return mapErr(err)
	}
	httpx.WriteJSON(w, hs, http.StatusOK)
	return nil
}

func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) error {
	ts, err := h.r.Probe(r.PathValue("channel_id"))
	if err != nil {
		if errors.Is(err, page.ErrPageNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return nil
		}
		return err
	}
	w.Header().Set(LastUpdateHeader, strconv.FormatFloat(Timestamp(ts), 'f', -1, 64))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) error {
	since, err := ParseTimestamp(r.URL.Query().Get("last_update_ts"))
	if err != nil {
		return httpx.BadRequest(err)
	}
	u, err := h.r.Fetch(r.PathValue("channel_id"), since)
	if err != nil {
		return mapErr(err)
	}
	httpx.WriteJSON(w, u, http.StatusOK)
	return nil
}

func (h *Handler) LongPoll(w http.ResponseWriter, r *http.Request) error {
	since, err := ParseTimestamp(r.URL.Query().Get("last_update_ts"))
	if err != nil {
		return httpx.BadRequest(err)
	}
	resp, err := h.r.LongPoll(r.Context(), r.PathValue("channel_id"), since)
	if err != nil {
		if r.Context().Err() != nil {
			// client went away; nothing to answer
			return nil
		}
		return mapErr(err)
	}
	httpx.WriteJSON(w, resp, http.StatusOK)
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, page.ErrPageNotFound) {
		return httpx.NotFound(err)
	}
	return err
}
