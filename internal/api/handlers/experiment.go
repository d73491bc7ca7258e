package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/Ayash-Bera/metricslab/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var errInvalidParticipant = errors.New("invalid participant id")

// ExperimentHandler exposes the Mutation API. Mutations that the tracker
// ignores still answer 200 with the unchanged progress.
type ExperimentHandler struct {
	tracker *experiment.Tracker
	logger  *logrus.Logger
}

func NewExperimentHandler(tracker *experiment.Tracker, logger *logrus.Logger) *ExperimentHandler {
	return &ExperimentHandler{tracker: tracker, logger: logger}
}

// participant reads and checks the :uid path parameter.
func participant(c *gin.Context) (string, bool) {
	uid, ok := utils.ParticipantID(c.Param("uid"))
	if !ok {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid participant id", errInvalidParticipant)
		return "", false
	}
	return experiment.UserKey(uid), true
}

// bindJSON decodes an optional body. An empty body leaves req untouched.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	return true
}

func (h *ExperimentHandler) GetState(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	state, err := h.tracker.State(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, uid, "Failed to read experiment state", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Experiment state retrieved", state)
}

func (h *ExperimentHandler) GetProgress(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	h.respondProgress(c, uid, "Progress retrieved")
}

func (h *ExperimentHandler) MarkMetricVisited(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	h.apply(c, uid, h.tracker.MarkMetricVisited(c.Request.Context(), uid, c.Param("metricId")))
}

func (h *ExperimentHandler) MarkMetricSearchUsed(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	var req models.SearchRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, uid, h.tracker.MarkMetricSearchUsed(c.Request.Context(), uid, req.Term))
}

func (h *ExperimentHandler) MarkMetricSearchClick(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	var req models.SearchClickRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, uid, h.tracker.MarkMetricSearchClick(c.Request.Context(), uid, req.Term, req.MetricID))
}

func (h *ExperimentHandler) AddChatEntry(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	var req experiment.ChatEntryInput
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, uid, h.tracker.AddChatEntry(c.Request.Context(), uid, req))
}

func (h *ExperimentHandler) ClearChatEntries(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	h.apply(c, uid, h.tracker.ClearChatEntries(c.Request.Context(), uid))
}

func (h *ExperimentHandler) RemoveChatEntry(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	var req models.EntryKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, uid, h.tracker.RemoveChatEntryByKey(c.Request.Context(), uid, req.Question, req.CreatedAt))
}

func (h *ExperimentHandler) SetChatEntryRating(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	var req models.RatingRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, uid, h.tracker.SetChatEntryRating(c.Request.Context(), uid, req.Question, req.CreatedAt, req.Rating))
}

func (h *ExperimentHandler) SetChatEntryRatings(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	var req models.RatingsRequest
	if !bindJSON(c, &req) {
		return
	}
	h.apply(c, uid, h.tracker.SetChatEntryRatings(c.Request.Context(), uid, req.Question, req.CreatedAt, req.Option1, req.Option2))
}

func (h *ExperimentHandler) ResetExperiment(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}
	h.apply(c, uid, h.tracker.ResetExperiment(c.Request.Context(), uid))
}

func (h *ExperimentHandler) apply(c *gin.Context, uid string, err error) {
	if err != nil {
		h.fail(c, uid, "Failed to update experiment state", err)
		return
	}
	h.respondProgress(c, uid, "Experiment state updated")
}

func (h *ExperimentHandler) respondProgress(c *gin.Context, uid, message string) {
	progress, err := h.tracker.Progress(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, uid, "Failed to read progress", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, message, progress)
}

func (h *ExperimentHandler) fail(c *gin.Context, uid, message string, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"user_id": uid,
		"path":    c.FullPath(),
	}).Error(message)
	utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
}
