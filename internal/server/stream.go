package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/copp1723/swarm-sub001/internal/notify"
	"github.com/copp1723/swarm-sub001/internal/store"
)

const (
	streamBufferSize = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// handleStream upgrades to a websocket, replays the task's event history and
// then streams live events until the client disconnects or the task ends.
func (s *Server) handleStream(c *gin.Context) {
	taskID := c.Param("id")

	if _, err := s.deps.Store.Get(c.Request.Context(), taskID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, APIResponse{Success: false, Error: err.Error()})
		return
	}

	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed for task %s: %v", taskID, err)
		return
	}

	events := make(chan notify.Event, streamBufferSize)
	history := s.deps.Broadcaster.Subscribe(taskID, events)
	s.logger.Info("Stream opened for task %s (%d history events, %d subscribers)",
		taskID, len(history), s.deps.Broadcaster.SubscriberCount(taskID))

	done := make(chan struct{})

	// Reader goroutine: consumes control frames and detects disconnect.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer loop owns the connection: history replay, live events, pings.
	go func() {
		defer func() {
			s.deps.Broadcaster.Unsubscribe(taskID, events)
			_ = conn.Close()
			s.logger.Info("Stream closed for task %s", taskID)
		}()

		for _, event := range history {
			if err := writeEvent(conn, event); err != nil {
				return
			}
		}

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(conn, event); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
}

func writeEvent(conn *websocket.Conn, event notify.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}
