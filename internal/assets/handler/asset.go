// Package handler exposes the asset inventory, scoring, and discovery scans
// over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/assets/service"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

// AssetHandler handles heartbeat ingestion, asset queries, and scoring.
type AssetHandler struct {
	svc    *service.HeartbeatService
	logger *zap.Logger
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(svc *service.HeartbeatService, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{svc: svc, logger: logger}
}

// Register registers the asset routes on the given router group.
func (h *AssetHandler) Register(rg *gin.RouterGroup) {
	assets := rg.Group("/assets")
	{
		assets.POST("/heartbeat", h.Heartbeat)
		assets.GET("", h.ListAssets)
		assets.GET("/:id", h.GetAsset)
		assets.DELETE("/:id", h.DeleteAsset)
	}
	rg.POST("/score", h.Score)
}

// HeartbeatResponse is the body returned by POST /assets/heartbeat.
type HeartbeatResponse struct {
	Asset     *model.Asset       `json:"asset"`
	Action    model.UpsertAction `json:"action"`
	RiskScore int                `json:"risk_score"`
}

// Heartbeat handles POST /assets/heartbeat — scores and upserts an asset.
func (h *AssetHandler) Heartbeat(c *gin.Context) {
	owner := c.GetHeader(headerUserID)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "x-user-id header required"})
		return
	}

	var p model.HeartbeatPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid heartbeat payload: " + err.Error()})
		return
	}

	res, err := h.svc.Ingest(c.Request.Context(), owner, &p)
	if err != nil {
		writeError(c, h.logger, err, "asset")
		return
	}
	RecordHeartbeat(res.Action, res.RiskScore)

	status := http.StatusOK
	if res.Action == model.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, HeartbeatResponse{Asset: res.Asset, Action: res.Action, RiskScore: res.RiskScore})
}

// ListAssets handles GET /assets — the owner's assets, highest risk first.
func (h *AssetHandler) ListAssets(c *gin.Context) {
	f := model.AssetFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Search: c.Query("search"),
	}
	assets, err := h.svc.List(c.Request.Context(), userID(c), f)
	if err != nil {
		writeError(c, h.logger, err, "assets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets, "count": len(assets)})
}

// GetAsset handles GET /assets/:id. Only the owner can see the asset.
func (h *AssetHandler) GetAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset ID"})
		return
	}
	a, err := h.svc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		writeError(c, h.logger, err, "asset")
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": a, "level": risk.GetRiskLevel(a.RiskScore)})
}

// DeleteAsset handles DELETE /assets/:id. Only the owner can delete it.
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset ID"})
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID(c), id); err != nil {
		writeError(c, h.logger, err, "asset")
		return
	}
	c.Status(http.StatusNoContent)
}

// ScoreResponse is the body returned by POST /score.
type ScoreResponse struct {
	RiskScore     int                  `json:"risk_score"`
	RiskFactors   model.RiskFactors    `json:"risk_factors"`
	Status        model.AssetStatus    `json:"status"`
	Level         risk.Level           `json:"level"`
	VectorContext *model.VectorContext `json:"vector_context,omitempty"`
}

// Score handles POST /score — stateless scoring of a heartbeat payload.
func (h *AssetHandler) Score(c *gin.Context) {
	var p model.HeartbeatPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid heartbeat payload: " + err.Error()})
		return
	}
	res := h.svc.Score(c.Request.Context(), &p, time.Now().UTC())
	c.JSON(http.StatusOK, ScoreResponse{
		RiskScore:     res.Score,
		RiskFactors:   res.Factors,
		Status:        res.Status,
		Level:         risk.GetRiskLevel(res.Score),
		VectorContext: res.Context,
	})
}
