// Package realtime pushes conversation activity to connected staff over
// Server-Sent Events and keeps a client-side view of the inbox in sync.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/httpkit"
	"imovelhub_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	EventMessageCreated      = "message.created"
	EventConversationUpdated = "conversation.updated"
	EventVisitConfirmed      = "visit.confirmed"
)

// frame is one named SSE event ready for the wire.
type frame struct {
	name string
	data any
}

// client is a single connected staff browser tab.
type client struct {
	userID uuid.UUID
	frames chan frame
}

// Hub fans bus events out to every connected staff client.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
	log     *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

// BindBus subscribes the hub to the conversation events staff care about.
func (h *Hub) BindBus(bus events.Bus) {
	bus.Subscribe(events.MessageCreated{}.EventName(), events.HandlerFunc(func(_ context.Context, ev events.Event) error {
		h.Broadcast(EventMessageCreated, ev)
		return nil
	}))
	bus.Subscribe(events.ConversationUpdated{}.EventName(), events.HandlerFunc(func(_ context.Context, ev events.Event) error {
		h.Broadcast(EventConversationUpdated, ev)
		return nil
	}))
	bus.Subscribe(events.VisitConfirmed{}.EventName(), events.HandlerFunc(func(_ context.Context, ev events.Event) error {
		h.Broadcast(EventVisitConfirmed, ev)
		return nil
	}))
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.userID] = append(h.clients[c.userID], c)
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.clients[c.userID]
	for i, cl := range list {
		if cl == c {
			h.clients[c.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.clients[c.userID]) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.frames)
}

// Broadcast sends an event to every connected client. A slow client drops
// the frame rather than blocking the bus; the fallback poll catches it up.
func (h *Hub) Broadcast(name string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, list := range h.clients {
		for _, c := range list {
			select {
			case c.frames <- frame{name: name, data: data}:
			default:
				h.log.Info("sse frame dropped for slow client", "user_id", userID, "event", name)
			}
		}
	}
}

// Handler streams events to the authenticated staff user.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httpkit.MustGetUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{userID: userID, frames: make(chan frame, 32)}
		h.addClient(cl)
		defer h.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID})
		c.Writer.Flush()

		gone := c.Request.Context().Done()
		for {
			select {
			case <-gone:
				return
			case fr, open := <-cl.frames:
				if !open {
					return
				}
				data, err := json.Marshal(fr.data)
				if err != nil {
					h.log.Error("sse frame marshal failed", "event", fr.name, "error", err)
					continue
				}
				c.SSEvent(fr.name, string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close disconnects every client, for shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, list := range h.clients {
		for _, c := range list {
			close(c.frames)
		}
	}
	h.clients = make(map[uuid.UUID][]*client)
}
