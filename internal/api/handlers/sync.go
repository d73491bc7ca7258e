package handlers

import (
	"net/http"

	"github.com/Ayash-Bera/metricslab/backend/internal/cloudsync"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/Ayash-Bera/metricslab/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SyncHandler opens and closes reconciliation sessions on sign-in and
// sign-out.
type SyncHandler struct {
	registry *cloudsync.Registry
	logger   *logrus.Logger
}

func NewSyncHandler(registry *cloudsync.Registry, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{registry: registry, logger: logger}
}

func (h *SyncHandler) HandleStart(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}

	sess, err := h.registry.Start(c.Request.Context(), uid)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", uid).Error("Failed to start sync session")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to start sync", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Sync started", models.SyncResponse{
		UserID:     sess.UserID,
		SessionID:  sess.ID,
		Resolution: string(sess.Outcome),
		Active:     true,
	})
}

func (h *SyncHandler) HandleStop(c *gin.Context) {
	uid, ok := participant(c)
	if !ok {
		return
	}

	var sessionID string
	if sess, found := h.registry.Get(uid); found {
		sessionID = sess.ID
	}
	stopped := h.registry.Stop(uid)

	message := "Sync stopped"
	if !stopped {
		message = "No sync session was active"
	}
	utils.SuccessResponse(c, http.StatusOK, message, models.SyncResponse{
		UserID:    uid,
		SessionID: sessionID,
		Active:    false,
	})
}
