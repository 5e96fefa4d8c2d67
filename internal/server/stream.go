package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ecogateway/internal/ecosystem"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// streamMessage is one frame pushed to stream subscribers
type streamMessage struct {
	Type string                    `json:"type"`
	Data ecosystem.AggregateHealth `json:"data"`
}

// handleStream upgrades to a websocket and pushes an aggregate health
// snapshot on connect and then every stream interval
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Error already logged by upgrader.Error
		return
	}
	defer conn.Close()

	s.streams.Add(1)
	defer s.streams.Done()
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	s.logger.Debug("Health stream opened", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read side only services control frames and notices the client leaving
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func() error {
		health := s.Client().CheckHealth(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(streamMessage{Type: "health", Data: health})
	}

	if err := push(); err != nil {
		s.logger.Debug("Health stream closed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ticker := time.NewTicker(s.config.StreamInterval)
	defer ticker.Stop()
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ticker.C:
			if err := push(); err != nil {
				s.logger.Debug("Health stream closed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-s.stop:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case <-ctx.Done():
			return
		}
	}
}
