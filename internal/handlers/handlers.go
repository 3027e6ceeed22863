package handlers

import (
	"net/http"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/api/common"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"

	"github.com/Vikasalagarsamy/OOAK-AI/internal/pipeline"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/telephony"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gin-gonic/gin"
)

// HandlerMetrics holds the metrics for handler operations
type HandlerMetrics struct {
	SignalsReceived *prometheus.CounterVec
	SignalsRejected *prometheus.CounterVec
	RescanRequests  prometheus.Counter
}

var (
	logger     logging.Logger
	metrics    *HandlerMetrics
	normalizer *telephony.Normalizer
	engine     *pipeline.Engine
)

// Init initializes the handlers with the logger, metrics, and the pipeline
// entry points they drive.
func Init(log logging.Logger, m *HandlerMetrics, n *telephony.Normalizer, e *pipeline.Engine) {
	logger = log
	metrics = m
	normalizer = n
	engine = e
}

// stateSignalRequest is one raw telephony transition as posted by the
// on-device signal source. The timestamp is optional; absent means "now".
type stateSignalRequest struct {
	State  string `json:"state" binding:"required"`
	Number string `json:"number"`
	At     string `json:"at"`
}

// originatedRequest carries the dialed number of an outgoing call.
type originatedRequest struct {
	Number string `json:"number" binding:"required"`
	At     string `json:"at"`
}

func parseSignalTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Now(), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func parsePhoneState(raw string) (telephony.PhoneState, bool) {
	switch telephony.PhoneState(raw) {
	case telephony.PhoneIdle, telephony.PhoneRinging, telephony.PhoneOffhook:
		return telephony.PhoneState(raw), true
	}
	return "", false
}

// HandleStateSignal handles POST /signals/state
func HandleStateSignal(c *gin.Context) {
	var req stateSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if metrics != nil {
			metrics.SignalsRejected.WithLabelValues("bad_request").Inc()
		}
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error: "invalid state signal",
			Code:  "BAD_REQUEST",
		})
		return
	}

	state, ok := parsePhoneState(req.State)
	if !ok {
		if metrics != nil {
			metrics.SignalsRejected.WithLabelValues("unknown_state").Inc()
		}
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error:   "unknown phone state",
			Code:    "UNKNOWN_STATE",
			Details: map[string]interface{}{"state": req.State},
		})
		return
	}

	at, ok := parseSignalTime(req.At)
	if !ok {
		if metrics != nil {
			metrics.SignalsRejected.WithLabelValues("bad_timestamp").Inc()
		}
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error:   "timestamp must be RFC3339",
			Code:    "BAD_TIMESTAMP",
			Details: map[string]interface{}{"at": req.At},
		})
		return
	}

	if metrics != nil {
		metrics.SignalsReceived.WithLabelValues(string(state)).Inc()
	}

	if err := normalizer.HandleState(c.Request.Context(), telephony.StateSignal{
		State:  state,
		Number: req.Number,
		At:     at,
	}); err != nil {
		logger.WithError(err).WithField("state", state).Warn("State signal not applied")
		c.JSON(http.StatusUnprocessableEntity, common.ErrorResponse{
			Error: err.Error(),
			Code:  "SIGNAL_NOT_APPLIED",
		})
		return
	}

	c.JSON(http.StatusOK, common.SuccessResponse{Success: true})
}

// HandleOriginatedSignal handles POST /signals/originated
func HandleOriginatedSignal(c *gin.Context) {
	var req originatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if metrics != nil {
			metrics.SignalsRejected.WithLabelValues("bad_request").Inc()
		}
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error: "invalid originated signal",
			Code:  "BAD_REQUEST",
		})
		return
	}

	at, ok := parseSignalTime(req.At)
	if !ok {
		if metrics != nil {
			metrics.SignalsRejected.WithLabelValues("bad_timestamp").Inc()
		}
		c.JSON(http.StatusBadRequest, common.ErrorResponse{
			Error:   "timestamp must be RFC3339",
			Code:    "BAD_TIMESTAMP",
			Details: map[string]interface{}{"at": req.At},
		})
		return
	}

	if metrics != nil {
		metrics.SignalsReceived.WithLabelValues("originated").Inc()
	}

	normalizer.HandleOriginated(c.Request.Context(), telephony.OriginatedSignal{
		Number: req.Number,
		At:     at,
	})
	c.JSON(http.StatusOK, common.SuccessResponse{Success: true})
}

// HandleRescan handles POST /rescan — one manual scan-and-match pass over
// every pending call.
func HandleRescan(c *gin.Context) {
	if metrics != nil {
		metrics.RescanRequests.Inc()
	}
	attempted := engine.Rescan(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"attempted": attempted,
	})
}

// HandleSessions handles GET /sessions, exposing tracker snapshots for
// debugging.
func HandleSessions(c *gin.Context) {
	sessions := engine.Sessions()
	if sessions == nil {
		sessions = []models.CallSession{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
