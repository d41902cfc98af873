package push

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Handler returns an http.HandlerFunc that upgrades the request to a
// WebSocket and streams broker events as JSON text frames. The client side is
// read only to detect close; inbound frames carry no meaning.
func Handler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("push upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		id, ch := broker.Subscribe()
		defer func() {
			broker.Unsubscribe(id)
			_ = conn.Close()
			slog.Debug("push listener disconnected", "listener_id", id)
		}()
		slog.Debug("push listener connected", "listener_id", id, "remote", r.RemoteAddr)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(evt)
				if err != nil {
					slog.Debug("push marshal failed", "type", evt.Type, "error", err)
					continue
				}
				if err := wsutil.WriteServerText(conn, data); err != nil {
					return
				}
			}
		}
	}
}
