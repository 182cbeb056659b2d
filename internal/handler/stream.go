package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// streamHeartbeat keeps idle proxies from closing the stream.
const streamHeartbeat = 25 * time.Second

// StreamMyChanges handles GET /me/registrations/stream
// Sends the caller's registration changes as server-sent events. Clients
// re-query status on connect; the stream carries only later changes.
func (h *Handler) StreamMyChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	changes, err := h.svc.Status.Subscribe(ctx, identity(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Warn("stream flush unsupported", "err", err)
		return
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case c, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				h.log.Error("marshal change", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: registration\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
