package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/cortex/core"
)

const (
	wsReadLimit  = 1 << 20
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
)

// wsReply is sent for every chat message received on the socket.
type wsReply struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleWebSocket serves chat over a persistent connection. Each text frame
// is a ChatInput; each reply carries either a response or an error.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("[SERVER] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Turns outlive the handshake request, so they run on a context that is
	// cancelled when the connection closes.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] WebSocket read error: %v", err)
			}
			return
		}
		// A turn may take longer than the pong window.
		conn.SetReadDeadline(time.Time{})

		var reply wsReply
		response, err := s.turn(ctx, data)
		if err != nil {
			if core.HTTPStatus(err) >= 500 {
				log.Printf("[SERVER] WebSocket turn failed: %v", err)
			}
			reply.Error = core.PublicMessage(err)
		} else {
			reply.Response = response
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("[SERVER] WebSocket write error: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

func (s *Server) turn(ctx context.Context, data []byte) (string, error) {
	var in core.ChatInput
	if err := json.Unmarshal(data, &in); err != nil {
		return "", core.Invalid("body", "invalid JSON body")
	}
	return s.service.ProcessTurn(ctx, in.Scope(s.defaultOwner), in.Prompt)
}
