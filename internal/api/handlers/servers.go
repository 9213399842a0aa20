package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/TheGojiOG/athena/internal/models"
	"github.com/TheGojiOG/athena/internal/server"
	"github.com/TheGojiOG/athena/internal/store"
	"github.com/gin-gonic/gin"
)

// ServerStore is the record store the server handler reads and writes.
type ServerStore interface {
	List() ([]*models.ServerInstance, error)
	Get(id string) (*models.ServerInstance, error)
	Create(srv *models.ServerInstance, modpackID *string) (*models.ServerInstance, error)
	Update(id string, req models.UpdateServerRequest) (*models.ServerInstance, error)
	Delete(id string) error
}

// Lifecycle triggers install/update and launch operations.
type Lifecycle interface {
	DispatchInstallUpdate(srv *models.ServerInstance, creds server.SteamCredentials) string
	DispatchLaunch(srv *models.ServerInstance) string
	Busy(serverID string) bool
	Paths() *server.PathResolver
}

// ActivityLog records record changes and serves the per-server history.
type ActivityLog interface {
	LogServerChange(serverID, activityType, description string) error
	GetActivities(serverID string, activityType string, since time.Time, limit int) ([]*logging.Activity, error)
}

// ServerHandler handles server management requests
type ServerHandler struct {
	store     ServerStore
	lifecycle Lifecycle
	activity  ActivityLog
	creds     server.SteamCredentials
}

// NewServerHandler creates a new server handler
func NewServerHandler(st ServerStore, lifecycle Lifecycle, activity ActivityLog, steam config.SteamConfig) *ServerHandler {
	return &ServerHandler{
		store:     st,
		lifecycle: lifecycle,
		activity:  activity,
		creds:     server.SteamCredentials{Username: steam.Username, Password: steam.Password},
	}
}

// ListServers returns all servers
func (h *ServerHandler) ListServers(c *gin.Context) {
	servers, err := h.store.List()
	if err != nil {
		respondError(c, err, "Failed to list servers")
		return
	}
	c.JSON(http.StatusOK, servers)
}

// GetServer returns a specific server
func (h *ServerHandler) GetServer(c *gin.Context) {
	srv, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load server")
		return
	}
	c.JSON(http.StatusOK, srv)
}

// CreateServer stores a new server and creates its install and profiles
// directories. The logs directory is created by the first operation.
func (h *ServerHandler) CreateServer(c *gin.Context) {
	var req models.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	srv, err := models.NewServer(req)
	if err != nil {
		respondError(c, err, "Invalid server")
		return
	}

	srv, err = h.store.Create(srv, req.ModpackID)
	if err != nil {
		respondError(c, err, "Failed to create server")
		return
	}

	paths := h.lifecycle.Paths().Resolve(srv.ID)
	for _, dir := range []string{paths.Install, paths.Profiles} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("[CreateServer] Failed to create %s for server %s: %v", dir, srv.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create server directories", "details": err.Error()})
			return
		}
	}

	h.logChange(srv.ID, logging.ActivityServerCreate, "Server created: "+srv.Name)
	c.JSON(http.StatusCreated, srv)
}

// UpdateServer applies a partial update
func (h *ServerHandler) UpdateServer(c *gin.Context) {
	serverID := c.Param("id")

	var req models.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	srv, err := h.store.Update(serverID, req)
	if err != nil {
		respondError(c, err, "Failed to update server")
		return
	}

	h.logChange(serverID, logging.ActivityServerUpdate, "Server updated")
	c.JSON(http.StatusOK, srv)
}

// DeleteServer removes a server record. Its directories are kept.
func (h *ServerHandler) DeleteServer(c *gin.Context) {
	serverID := c.Param("id")

	if err := h.store.Delete(serverID); err != nil {
		respondError(c, err, "Failed to delete server")
		return
	}

	h.logChange(serverID, logging.ActivityServerDelete, "Server deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted successfully"})
}

// UpgradeServer dispatches a SteamCMD install/update for the server.
func (h *ServerHandler) UpgradeServer(c *gin.Context) {
	srv, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load server")
		return
	}

	queued := h.lifecycle.Busy(srv.ID)
	operationID := h.lifecycle.DispatchInstallUpdate(srv, h.creds)
	log.Printf("[UpgradeServer] Dispatched install/update %s for server %s", operationID, srv.ID)

	c.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "queued": queued})
}

// StartServer dispatches a launch of the dedicated server.
func (h *ServerHandler) StartServer(c *gin.Context) {
	srv, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load server")
		return
	}

	queued := h.lifecycle.Busy(srv.ID)
	operationID := h.lifecycle.DispatchLaunch(srv)
	log.Printf("[StartServer] Dispatched launch %s for server %s", operationID, srv.ID)

	c.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "queued": queued})
}

// GetServerActivity returns recent activity log entries for a server
func (h *ServerHandler) GetServerActivity(c *gin.Context) {
	serverID := c.Param("id")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	activityType := strings.TrimSpace(c.Query("type"))

	if h.activity == nil {
		c.JSON(http.StatusOK, gin.H{"activities": []*logging.Activity{}})
		return
	}

	activities, err := h.activity.GetActivities(serverID, activityType, time.Time{}, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

func (h *ServerHandler) logChange(serverID, activityType, description string) {
	if h.activity == nil {
		return
	}
	if err := h.activity.LogServerChange(serverID, activityType, description); err != nil {
		log.Printf("[ServerHandler] Failed to record %s for server %s: %v", activityType, serverID, err)
	}
}

// respondError maps store and validation errors onto HTTP statuses.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[API] %s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
