package handlers

import (
	"errors"
	"net/http"

	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/Ayash-Bera/metricslab/backend/internal/feedback"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/Ayash-Bera/metricslab/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type FeedbackHandler struct {
	service *feedback.Service
	tracker *experiment.Tracker
	logger  *logrus.Logger
}

func NewFeedbackHandler(service *feedback.Service, tracker *experiment.Tracker, logger *logrus.Logger) *FeedbackHandler {
	return &FeedbackHandler{service: service, tracker: tracker, logger: logger}
}

// HandleSubmit records the final questionnaire
func (h *FeedbackHandler) HandleSubmit(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}

	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	_, err := h.service.Submit(c.Request.Context(), uid, feedback.Submission{
		QuestionnaireID: req.QuestionnaireID,
		Answers:         req.Answers,
	})
	switch {
	case errors.Is(err, feedback.ErrFeedbackLocked):
		utils.ErrorResponse(c, http.StatusForbidden, "Feedback is not unlocked yet", err)
		return
	case errors.Is(err, feedback.ErrAlreadySubmitted):
		utils.ErrorResponse(c, http.StatusConflict, "Feedback already submitted", err)
		return
	case errors.Is(err, feedback.ErrInvalidAnswers):
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid answers", err)
		return
	case err != nil:
		h.logger.WithError(err).WithField("user_id", uid).Error("Failed to submit feedback")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to submit feedback", err)
		return
	}

	progress, err := h.tracker.Progress(c.Request.Context(), uid)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to read progress", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", progress)
}
