// Copyright 2025 Certen Protocol
//
// HTTP-to-websocket upgrade entrypoint. Framing and flow control below the
// websocket frame are external per spec.md section 4.2; this file is the
// only place that touches net/http.

package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades an HTTP request to a websocket connection and serves
// it for the connection's lifetime. It satisfies http.Handler so it can be
// registered directly on a mux.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	conn := newConnection(ws, h.Logger)
	h.Serve(conn)
}
