package handlers

import (
	"log"
	"net/http"

	"github.com/TheGojiOG/athena/internal/api/middleware"
	"github.com/TheGojiOG/athena/internal/console"
	ws "github.com/TheGojiOG/athena/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConsoleHandler streams drained process output to WebSocket viewers.
type ConsoleHandler struct {
	store          ServerStore
	hub            *ws.Hub
	allowedOrigins []string
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(st ServerStore, hub *ws.Hub, allowedOrigins []string) *ConsoleHandler {
	return &ConsoleHandler{
		store:          st,
		hub:            hub,
		allowedOrigins: allowedOrigins,
	}
}

// HandleConsoleWebSocket subscribes the caller to one server's output.
// WS /ws/servers/:id/console?filter=errors|search|regex&pattern=...
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	srv, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load server")
		return
	}

	filter, err := parseOutputFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upgrader := buildUpgrader(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s, server=%s)", err, c.Request.Header.Get("Origin"), srv.ID)
		return
	}

	client := &ws.Client{
		ID:       uuid.New().String(),
		Operator: c.GetString(middleware.OperatorKey),
		Conn:     conn,
		Room:     srv.ID,
		Send:     make(chan *ws.Message, 1024),
		Hub:      h.hub,
	}
	if filter.FilterType != console.FilterNone {
		client.Filter = filter
	}

	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.IsOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}

// parseOutputFilter reads the filter, pattern and case_sensitive query parameters.
func parseOutputFilter(c *gin.Context) (*console.OutputFilter, error) {
	return console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
}
