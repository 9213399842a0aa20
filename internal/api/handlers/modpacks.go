package handlers

import (
	"net/http"

	"github.com/TheGojiOG/athena/internal/models"
	"github.com/gin-gonic/gin"
)

// ModpackStore persists modpack records.
type ModpackStore interface {
	CreateModpack(req models.CreateModpackRequest) (*models.Modpack, error)
	ListModpacks() ([]*models.Modpack, error)
}

// ModpackHandler handles modpack requests
type ModpackHandler struct {
	store ModpackStore
}

// NewModpackHandler creates a new modpack handler
func NewModpackHandler(st ModpackStore) *ModpackHandler {
	return &ModpackHandler{store: st}
}

// ListModpacks returns every modpack
func (h *ModpackHandler) ListModpacks(c *gin.Context) {
	modpacks, err := h.store.ListModpacks()
	if err != nil {
		respondError(c, err, "Failed to list modpacks")
		return
	}
	c.JSON(http.StatusOK, modpacks)
}

// CreateModpack stores a new modpack
func (h *ModpackHandler) CreateModpack(c *gin.Context) {
	var req models.CreateModpackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modpack, err := h.store.CreateModpack(req)
	if err != nil {
		respondError(c, err, "Failed to create modpack")
		return
	}

	c.JSON(http.StatusCreated, modpack)
}
