package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
	watchPollEvery = 3 * time.Second
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWatch streams status transitions for one repository key until a
// terminal state is reached. It is a push wrapper over the same state the
// status endpoint polls.
func (h *Handler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	repoKey := strings.TrimSpace(r.URL.Query().Get("repo"))
	if repoKey == "" {
		http.Error(w, "Missing 'repo' query parameter", http.StatusBadRequest)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// Drain the read side so pongs and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(watchPingEvery)
	defer pingTicker.Stop()
	pollTicker := time.NewTicker(watchPollEvery)
	defer pollTicker.Stop()

	var lastStatus string
	send := func() (terminal bool, err error) {
		view, lookupErr := h.coord.Status(ctx, repoKey)
		if lookupErr != nil {
			return false, lookupErr
		}
		if view.Status == lastStatus {
			return view.Status == "done" || view.Status == "error", nil
		}
		lastStatus = view.Status
		if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
			return false, err
		}
		if err := conn.WriteJSON(view); err != nil {
			return false, err
		}
		return view.Status == "done" || view.Status == "error", nil
	}

	if terminal, err := send(); err != nil || terminal {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-pollTicker.C:
			if terminal, err := send(); err != nil || terminal {
				return
			}
		}
	}
}
