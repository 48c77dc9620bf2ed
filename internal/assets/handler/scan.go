package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/scan"
)

// ScanHandler starts discovery scans and streams their progress.
type ScanHandler struct {
	orch   *scan.Orchestrator
	logger *zap.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(orch *scan.Orchestrator, logger *zap.Logger) *ScanHandler {
	return &ScanHandler{orch: orch, logger: logger}
}

// Register registers the scan routes on the given router group.
func (h *ScanHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/assets/scan", h.StartScan)

	scans := rg.Group("/scans")
	{
		scans.GET("/:id", h.GetScan)
		scans.GET("/:id/events", h.StreamScan)
		scans.POST("/:id/cancel", h.CancelScan)
	}
}

// StartScan handles POST /assets/scan — starts a scan and streams its events
// as server-sent events. The scan is cancelled if the client disconnects
// or a write to it fails before the scan finishes.
func (h *ScanHandler) StartScan(c *gin.Context) {
	var req model.StartScanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan request: " + err.Error()})
			return
		}
	}
	if req.UserID == "" {
		req.UserID = userID(c)
	}

	run, err := h.orch.Start(c.Request.Context(), req.UserID, req.ScanType, req.Subnet)
	if err != nil {
		writeError(c, h.logger, err, "scan")
		return
	}
	h.stream(c, run.ID, true)
}

// StreamScan handles GET /scans/:id/events — replays a scan's history and
// follows it live. Disconnecting does not cancel the scan.
func (h *ScanHandler) StreamScan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan ID"})
		return
	}
	if !h.ownsRun(c, id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan stream not available"})
		return
	}
	h.stream(c, id, false)
}

// GetScan handles GET /scans/:id.
func (h *ScanHandler) GetScan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan ID"})
		return
	}
	rec, err := h.orch.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		writeError(c, h.logger, err, "scan")
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan": rec})
}

// CancelScan handles POST /scans/:id/cancel.
func (h *ScanHandler) CancelScan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan ID"})
		return
	}
	if !h.ownsRun(c, id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	if err := h.orch.Cancel(id); err != nil {
		if errors.Is(err, scan.ErrUnknownScan) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}
		writeError(c, h.logger, err, "scan")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

// ownsRun reports whether id is a live or retained run the caller started.
func (h *ScanHandler) ownsRun(c *gin.Context, id uuid.UUID) bool {
	owner := userID(c)
	run, ok := h.orch.Lookup(id)
	return ok && owner != "" && run.UserID == owner
}

// stream writes every event of a scan as `data: {json}\n\n` until the
// terminal event. A subscriber dropped for falling behind re-subscribes and
// skips events it has already written.
func (h *ScanHandler) stream(c *gin.Context, id uuid.UUID, cancelOnDisconnect bool) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	clientGone := c.Request.Context().Done()
	lastSeq := 0

	for {
		backlog, live, unsubscribe, err := h.orch.Subscribe(id)
		if err != nil {
			h.logger.Warn("scan stream: subscribe", zap.String("scan_id", id.String()), zap.Error(err))
			return
		}

		for _, ev := range backlog {
			if ev.Seq <= lastSeq {
				continue
			}
			if !h.writeEvent(c, ev) {
				unsubscribe()
				h.abandon(id, cancelOnDisconnect)
				return
			}
			lastSeq = ev.Seq
			if ev.Terminal() {
				unsubscribe()
				return
			}
		}

	follow:
		for {
			select {
			case ev, ok := <-live:
				if !ok {
					break follow
				}
				if ev.Seq <= lastSeq {
					continue
				}
				if !h.writeEvent(c, ev) {
					unsubscribe()
					h.abandon(id, cancelOnDisconnect)
					return
				}
				lastSeq = ev.Seq
				if ev.Terminal() {
					unsubscribe()
					return
				}
			case <-clientGone:
				unsubscribe()
				h.abandon(id, cancelOnDisconnect)
				return
			}
		}
		unsubscribe()
	}
}

// abandon is called when the client can no longer be written to. A scan
// started by this stream is cancelled with it.
func (h *ScanHandler) abandon(id uuid.UUID, cancelScan bool) {
	if !cancelScan {
		return
	}
	_ = h.orch.Cancel(id)
	h.logger.Info("scan stream: client disconnected, scan cancelled",
		zap.String("scan_id", id.String()))
}

func (h *ScanHandler) writeEvent(c *gin.Context, ev scan.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("scan stream: encode event", zap.Error(err))
		return false
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
