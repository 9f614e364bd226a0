// Package admin is the operator API for managing live pages and their posts.
package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"live-service/internal/engine"
	"live-service/internal/livepost"
	"live-service/internal/page"
	"live-service/internal/polling"
	"live-service/internal/shared/httpx"
)

type Handler struct {
	engine *engine.Engine
	pages  *page.Registry
	log    *slog.Logger
}

func NewHandler(e *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, pages: e.Pages(), log: logger.With("component", "admin")}
}

// audit records who changed what.
func (h *Handler) audit(r *http.Request, action string, attrs ...any) {
	sub, _ := httpx.UserFromCtx(r)
	h.log.Info("operator action", append([]any{"operator", sub, "action", action}, attrs...)...)
}

// Routes registers the operator endpoints behind auth.
func (h *Handler) Routes(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	protect := func(pattern string, fn httpx.HandlerFunc) {
		mux.Handle(pattern, auth(httpx.Wrap(fn)))
	}
	protect("POST /pages", h.CreatePage)
	protect("GET /pages", h.ListPages)
	protect("GET /pages/{channel_id}", h.GetPage)
	protect("DELETE /pages/{channel_id}", h.DeletePage)
	protect("GET /pages/{channel_id}/posts/{post_id}", h.GetPost)
	protect("DELETE /pages/{channel_id}/posts/{post_id}", h.DeletePost)
	protect("POST /pages/{channel_id}/posts/{post_id}/hide", h.HidePost)
	protect("POST /pages/{channel_id}/posts/{post_id}/show", h.ShowPost)
}

type CreatePageReq struct {
	ChannelID string `json:"channel_id"`
}

type PageView struct {
	ChannelID           string           `json:"channel_id"`
	LastUpdateTimestamp float64          `json:"lastUpdateTimestamp"`
	Posts               []*livepost.Post `json:"posts,omitempty"`
}

func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) error {
	in, err := httpx.Decode[CreatePageReq](r)
	if err != nil {
		return err
	}
	if in.ChannelID == "" {
		return httpx.BadRequest(errors.New("channel_id is required"))
	}
	p, err := h.pages.Create(r.Context(), in.ChannelID)
	if err != nil {
		return mapErr(err)
	}
	h.audit(r, "create_page", "channel_id", p.ChannelID)
	httpx.WriteJSON(w, PageView{ChannelID: p.ChannelID, LastUpdateTimestamp: polling.Timestamp(p.LastUpdatedAt())}, http.StatusCreated)
	return nil
}

func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) error {
	ids := h.pages.List()
	out := make([]PageView, 0, len(ids))
	for _, id := range ids {
		p, err := h.pages.Get(id)
		if err != nil {
			// deleted since List
			continue
		}
		out = append(out, PageView{ChannelID: id, LastUpdateTimestamp: polling.Timestamp(p.LastUpdatedAt())})
	}
	httpx.WriteJSON(w, map[string]any{"items": out}, http.StatusOK)
	return nil
}

func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) error {
	p, err := h.pages.Get(r.PathValue("channel_id"))
	if err != nil {
		return mapErr(err)
	}
	s := p.Snapshot()
	posts := s.Posts
	if posts == nil {
		posts = []*livepost.Post{}
	}
	httpx.WriteJSON(w, PageView{
		ChannelID:           s.ChannelID,
		LastUpdateTimestamp: polling.Timestamp(s.LastUpdatedAt),
		Posts:               posts,
	}, http.StatusOK)
	return nil
}

func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) error {
	if err := h.pages.Delete(r.Context(), r.PathValue("channel_id")); err != nil {
		return mapErr(err)
	}
	h.audit(r, "delete_page", "channel_id", r.PathValue("channel_id"))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) error {
	post, err := h.engine.GetPost(r.PathValue("channel_id"), r.PathValue("post_id"))
	if err != nil {
		return mapErr(err)
	}
	httpx.WriteJSON(w, post, http.StatusOK)
	return nil
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) error {
	if err := h.engine.DeletePost(r.Context(), r.PathValue("channel_id"), r.PathValue("post_id")); err != nil {
		return mapErr(err)
	}
	h.audit(r, "delete_post", "channel_id", r.PathValue("channel_id"), "post_id", r.PathValue("post_id"))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) HidePost(w http.ResponseWriter, r *http.Request) error {
	return h.setVisibility(w, r, false)
}

func (h *Handler) ShowPost(w http.ResponseWriter, r *http.Request) error {
	return h.setVisibility(w, r, true)
}

func (h *Handler) setVisibility(w http.ResponseWriter, r *http.Request, visible bool) error {
	post, err := h.engine.SetVisibility(r.Context(), r.PathValue("channel_id"), r.PathValue("post_id"), visible)
	if err != nil {
		return mapErr(err)
	}
	h.audit(r, "set_visibility", "channel_id", r.PathValue("channel_id"), "post_id", post.ID, "visible", visible)
	httpx.WriteJSON(w, post, http.StatusOK)
	return nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, page.ErrPageNotFound), errors.Is(err, livepost.ErrPostNotFound):
		return httpx.NotFound(err)
	case errors.Is(err, page.ErrPageExists):
		return httpx.Conflict(err)
	}
	return err
}
