package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatrelay/internal/hub"
	"chatrelay/internal/middleware"
	"chatrelay/internal/model"
)

// StreamHandler serves the live message feed. All framings drain the
// same per-connection channel; only the bytes on the wire differ.
type StreamHandler struct {
	Broker *Broker
}

// begin opens the caller's delivery channel and announces the listener
// to each of their sessions. The returned cleanup must run on every
// exit path: it deregisters the channel and announces the departure.
func (h *StreamHandler) begin(c *gin.Context) (model.User, *hub.Channel, func(), bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return model.User{}, nil, nil, false
	}
	ch, cleanup := h.attach(user)
	return user, ch, cleanup, true
}

// attach must only run once the transport is established; announcing a
// listener whose connection never came up would spam every session with
// a join/leave pair.
func (h *StreamHandler) attach(user model.User) (*hub.Channel, func()) {
	ch := h.Broker.Hub.Open(user.ID)
	h.announce(user, fmt.Sprintf("%s is now listening.", user.Username))

	cleanup := func() {
		h.Broker.Hub.Close(ch)
		h.announce(user, fmt.Sprintf("%s stopped listening.", user.Username))
	}
	return ch, cleanup
}

func (h *StreamHandler) announce(user model.User, text string) {
	for _, sess := range h.Broker.Store.SessionsOf(user.ID) {
		h.Broker.System(user, sess.ID, text)
	}
}

// Listen streams messages as newline-delimited JSON, one object per
// line, held open until the client disconnects.
func (h *StreamHandler) Listen(c *gin.Context) {
	_, ch, cleanup, ok := h.begin(c)
	if !ok {
		return
	}
	defer cleanup()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		msg, err := ch.Next(ctx)
		if err != nil {
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if _, err := c.Writer.Write(append(data, '\n')); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// SSE delivers the same feed as server-sent events.
func (h *StreamHandler) SSE(c *gin.Context) {
	_, ch, cleanup, ok := h.begin(c)
	if !ok {
		return
	}
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		msg, err := ch.Next(ctx)
		if err != nil {
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WS delivers the feed over a websocket, one JSON text message per chat
// message. Inbound frames are discarded; posting still goes through the
// HTTP endpoints.
func (h *StreamHandler) WS(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	ch, cleanup := h.attach(user)
	defer cleanup()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ws.SetReadLimit(1024)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Reader exists only to surface disconnects and keep pongs flowing.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(wsWriteWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		msg, err := ch.Next(ctx)
		if err != nil {
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
