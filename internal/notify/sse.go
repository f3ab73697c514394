package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// Subscribe opens a pub/sub subscription for one account's channel. The
// caller owns the returned subscription and must close it.
func (s *Service) Subscribe(ctx context.Context, accountID int64) *redis.PubSub {
	if s.redis == nil {
		return nil
	}
	return s.redis.Subscribe(ctx, channelFor(accountID))
}

// handleStream serves the account's notifications as a server-sent event
// stream. Each published notification becomes one SSE message; a comment
// line is emitted periodically to keep intermediaries from closing the
// connection.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "streaming unsupported")
		return
	}
	sub := h.service.Subscribe(r.Context(), principal.ID)
	if sub == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "notification stream unavailable")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write([]byte("event: notification\ndata: " + msg.Payload + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
