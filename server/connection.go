// server/connection.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/sim"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second // must be less than wsReadTimeout
	wsWriteTimeout = 10 * time.Second

	wsReadLimit = 8 * 1024

	// Inbound rate cap; excess frames within a second are dropped.
	wsMaxMessagesPerSecond = 50

	// High-water mark for the outbound queue. A client that can't keep
	// up gets dropped rather than stalling the session loop.
	sendHighWater = 256
)

// Connection is one websocket client. Two goroutines serve it: readPump
// parses and dispatches inbound frames, writePump drains the send queue
// and keeps the liveness pings going.
type Connection struct {
	Id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	sm   *ServerManager
	lg   *log.Logger

	closeOnce sync.Once

	// Guarded by the manager's mutex.
	PlayerId sim.PlayerId
	LobbyId  string
	GameId   string
}

func newConnection(conn *websocket.Conn, sm *ServerManager) *Connection {
	id := uuid.NewString()
	return &Connection{
		Id:   id,
		conn: conn,
		send: make(chan []byte, sendHighWater),
		done: make(chan struct{}),
		sm:   sm,
		lg:   sm.lg.With(slog.String("connection", id)),
	}
}

// Send marshals the message and queues it for the write pump. If the
// queue is at its high-water mark the connection is dropped; the session
// treats that as a leave.
func (c *Connection) Send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.lg.Errorf("marshaling %T: %v", msg, err)
		return
	}
	select {
	case <-c.done:
	case c.send <- b:
	default:
		c.lg.Warn("send queue full, dropping connection")
		c.close()
	}
}

func (c *Connection) SendError(code string, err error) {
	c.Send(errorMessage{Type: "error", Code: code, Message: err.Error()})
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Connection) readPump() {
	defer c.lg.CatchAndReportCrash()
	defer func() {
		c.sm.connectionClosed(c)
		c.close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	messageCount := 0
	rateWindowStart := time.Now()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.lg.Warnf("websocket read: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if now := time.Now(); now.Sub(rateWindowStart) >= time.Second {
			messageCount = 0
			rateWindowStart = now
		}
		if messageCount++; messageCount > wsMaxMessagesPerSecond {
			continue
		}

		c.sm.handleMessage(c, data)
	}
}

func (c *Connection) writePump() {
	defer c.lg.CatchAndReportCrash()

	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
