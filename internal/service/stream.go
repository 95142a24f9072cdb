package service

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Moonlightintherain/q/internal/hub"
	"github.com/Moonlightintherain/q/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// CrashStream upgrades the connection and forwards crash round events to the
// client. The first message is always a snapshot of the current round.
func (s *Service) CrashStream(c *gin.Context) {
	sub := s.Crash.Subscribe()
	s.serveStream(c, sub, func() { s.Crash.Unsubscribe(sub) })
}

// RouletteStream is the roulette counterpart of CrashStream.
func (s *Service) RouletteStream(c *gin.Context) {
	sub := s.Roulette.Subscribe()
	s.serveStream(c, sub, func() { s.Roulette.Unsubscribe(sub) })
}

func (s *Service) serveStream(c *gin.Context, sub *hub.Subscriber, unsubscribe func()) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		logger.Error("Failed to upgrade websocket: %v", err)
		return
	}

	closed := make(chan struct{})

	// Read loop exists only to detect disconnects and answer pings.
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				// Dropped by the hub for falling behind.
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
