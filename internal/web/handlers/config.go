package handlers

import (
	"net/http"

	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config   *config.Config
	pipeline *attendance.Pipeline
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, p *attendance.Pipeline) *ConfigHandler {
	return &ConfigHandler{
		config:   cfg,
		pipeline: p,
	}
}

// ConfigResponse represents the effective policy and runtime state
type ConfigResponse struct {
	Policy         *config.PolicyConfig `json:"policy"`
	EmbeddingDim   int                  `json:"embedding_dim"`
	HNSWEnabled    bool                 `json:"hnsw_enabled"`
	HNSWCount      int                  `json:"hnsw_count"`
	RedisDebounce  bool                 `json:"redis_debounce"`
	Employees      int                  `json:"employees"`
	PendingCommits int                  `json:"pending_commits"`
}

// Get returns the effective configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Policy:         h.pipeline.Policy(),
		EmbeddingDim:   h.config.Embedding.Dim,
		HNSWEnabled:    h.config.Database.HNSWEnabled,
		RedisDebounce:  h.config.Redis.URL != "",
		Employees:      h.pipeline.EmployeeCount(),
		PendingCommits: h.pipeline.PendingCommits(),
	}
	if rebuilder := database.GetTemplateIndexRebuilder(); rebuilder != nil {
		response.HNSWCount = rebuilder.IndexCount()
	}

	respondJSON(w, http.StatusOK, response)
}
