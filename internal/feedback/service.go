package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultQuestionnaireID is recorded when the client names no questionnaire.
const DefaultQuestionnaireID = "study_v1"

var (
	// ErrFeedbackLocked is returned while the feedback gate is closed.
	ErrFeedbackLocked = errors.New("final feedback is locked")
	// ErrAlreadySubmitted is returned for a second submission by the same user.
	ErrAlreadySubmitted = errors.New("final feedback already submitted")
	// ErrInvalidAnswers is returned when answers are not a JSON object.
	ErrInvalidAnswers = errors.New("answers must be a JSON object")
)

type Submission struct {
	QuestionnaireID string
	Answers         json.RawMessage
}

// Service accepts the final questionnaire once per participant.
type Service struct {
	tracker *experiment.Tracker
	repo    models.FeedbackSubmissionRepository
	logger  *logrus.Logger
}

func NewService(tracker *experiment.Tracker, repo models.FeedbackSubmissionRepository, logger *logrus.Logger) *Service {
	return &Service{tracker: tracker, repo: repo, logger: logger}
}

// Submit persists the questionnaire together with an audit snapshot of the
// experiment, then marks feedback as sent.
func (s *Service) Submit(ctx context.Context, userID string, in Submission) (*models.FeedbackSubmission, error) {
	uid := experiment.UserKey(userID)
	log := s.logger.WithField("user_id", uid)

	if !isObject(in.Answers) {
		return nil, ErrInvalidAnswers
	}

	state, err := s.tracker.State(ctx, uid)
	if err != nil {
		return nil, err
	}
	reqs := s.tracker.Requirements()
	if !reqs.CanAccessFeedback(state) {
		log.Debug("Rejected feedback submission while locked")
		return nil, ErrFeedbackLocked
	}

	exists, err := s.repo.Exists(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if exists {
		return nil, ErrAlreadySubmitted
	}

	questions := state.ChatEntries
	if len(questions) > reqs.QuestionsRequired {
		questions = questions[:reqs.QuestionsRequired]
	}
	encodedQuestions, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questions: %w", err)
	}

	questionnaireID := strings.TrimSpace(in.QuestionnaireID)
	if questionnaireID == "" {
		questionnaireID = DefaultQuestionnaireID
	}

	submission := &models.FeedbackSubmission{
		UserID:               uid,
		QuestionnaireID:      questionnaireID,
		Answers:              string(in.Answers),
		VisitedMetrics:       models.StringArray(experiment.VisitedMetricIDs(state)),
		Questions:            string(encodedQuestions),
		MetricSearchTaskDone: experiment.HasCompletedMetricSearchTask(state),
	}
	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to save feedback submission: %w", err)
	}

	if err := s.tracker.MarkFeedbackSent(ctx, uid); err != nil {
		return submission, err
	}

	log.WithField("questionnaire_id", questionnaireID).Info("Final feedback submitted")
	return submission, nil
}

func isObject(raw json.RawMessage) bool {
	var v map[string]any
	return json.Unmarshal(raw, &v) == nil && v != nil
}
