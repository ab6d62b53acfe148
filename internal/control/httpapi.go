package control

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clocksync/clocksync/pkg/masterclock"
	"github.com/clocksync/clocksync/pkg/monitor"
	"github.com/clocksync/clocksync/pkg/syncctl"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// HTTPHandler mirrors the RPC surface for tooling that prefers HTTP.
// It carries no business logic of its own: every handler just reads a
// monitor snapshot or issues a controller command.
type HTTPHandler struct {
	ctl     *syncctl.Controller
	mon     *monitor.Monitor
	master  *masterclock.Clock
	baseCtx context.Context
}

// NewHTTPHandler builds a Handler over the same controller/monitor an
// RPCServer would use. master is nil on the Slave process.
func NewHTTPHandler(ctx context.Context, ctl *syncctl.Controller, mon *monitor.Monitor, master *masterclock.Clock) *HTTPHandler {
	return &HTTPHandler{ctl: ctl, mon: mon, master: master, baseCtx: ctx}
}

// SetupRouter registers every route this package exposes on r.
func SetupRouter(r *gin.Engine, h *HTTPHandler) {
	r.GET("/status", h.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctrl := r.Group("/control")
	{
		ctrl.POST("/start", h.Start)
		ctrl.POST("/stop", h.Stop)
		ctrl.POST("/reference-time", h.SetReferenceTime)
		ctrl.POST("/adjust-reference-time", h.AdjustReferenceTime)
	}
}

// Status returns the monitor's current snapshot as JSON.
func (h *HTTPHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.mon.Snapshot())
}

// Start launches the sync controller's background cycle loop. It
// returns 404 on a Master process, which has no sync controller.
func (h *HTTPHandler) Start(c *gin.Context) {
	if h.ctl == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "start/stop control is only available on the Slave"})
		return
	}
	h.ctl.Start(h.baseCtx)
	c.JSON(http.StatusOK, gin.H{"state": h.ctl.State().String()})
}

// Stop halts the sync controller's background cycle loop. It returns
// 404 on a Master process.
func (h *HTTPHandler) Stop(c *gin.Context) {
	if h.ctl == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "start/stop control is only available on the Slave"})
		return
	}
	h.ctl.Stop()
	c.JSON(http.StatusOK, gin.H{"state": h.ctl.State().String()})
}

type referenceTimeRequest struct {
	Value string `json:"value" binding:"required"`
}

// SetReferenceTime rebases the Master's reference time source.
// Returns 404 on a Slave process, 400 on a malformed time string.
func (h *HTTPHandler) SetReferenceTime(c *gin.Context) {
	if h.master == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reference time control is only available on the Master"})
		return
	}
	var req referenceTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.master.SetReferenceTime(req.Value) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse reference time"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"now": h.master.Now()})
}

type adjustReferenceTimeRequest struct {
	DeltaSeconds float64 `json:"delta_seconds" binding:"required"`
}

// AdjustReferenceTime applies an incremental offset to the Master's
// reference time source. Returns 404 on a Slave process.
func (h *HTTPHandler) AdjustReferenceTime(c *gin.Context) {
	if h.master == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reference time control is only available on the Master"})
		return
	}
	var req adjustReferenceTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delta := secondsToDuration(req.DeltaSeconds)
	now := h.master.AdjustReferenceTime(delta)
	c.JSON(http.StatusOK, gin.H{"now": now})
}
