package experiment

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// createdAtLayout matches the millisecond ISO-8601 timestamps browsers emit.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

const minSearchTermLength = 2

// ChatEntryInput is the loosely typed payload of AddChatEntry. Rating fields
// accept anything JSON can carry and are coerced on the way in.
type ChatEntryInput struct {
	Question        string          `json:"question"`
	Model           string          `json:"model"`
	MetricID        string          `json:"metricId"`
	MetricName      string          `json:"metricName"`
	CreatedAt       string          `json:"createdAt"`
	ChosenText      string          `json:"chosenText"`
	PreferredOption any             `json:"preferredOption"`
	Ratings         RatingsInput    `json:"ratings"`
	Option1Variant  string          `json:"option1_variant"`
	Option2Variant  string          `json:"option2_variant"`
	AnswerOrder     json.RawMessage `json:"answerOrder"`
	Rating          any             `json:"rating"`
}

type RatingsInput struct {
	Option1 any `json:"option1"`
	Option2 any `json:"option2"`
}

// Tracker is the Mutation API. Every write path goes through it; invalid
// input is ignored silently and only storage failures are returned.
type Tracker struct {
	store        *Store
	requirements Requirements
	logger       *logrus.Logger
}

func NewTracker(store *Store, requirements Requirements, logger *logrus.Logger) *Tracker {
	return &Tracker{
		store:        store,
		requirements: requirements,
		logger:       logger,
	}
}

func (t *Tracker) Store() *Store {
	return t.store
}

func (t *Tracker) Requirements() Requirements {
	return t.requirements
}

// MarkMetricVisited records a metric page view. Ids not matching t<digits>
// after trimming and lowercasing are ignored.
func (t *Tracker) MarkMetricVisited(ctx context.Context, userID, metricID string) error {
	id := normalizeMetricID(metricID)
	if !validMetricID(id) {
		return t.skip(userID, "mark_metric_visited", "invalid metric id")
	}
	return t.update(ctx, userID, "mark_metric_visited", func(s *State) bool {
		if s.MetricsVisited[id] {
			return false
		}
		s.MetricsVisited[id] = true
		return true
	})
}

// MarkMetricSearchUsed counts one search per distinct term of at least two
// characters. Repeating the last term does not count.
func (t *Tracker) MarkMetricSearchUsed(ctx context.Context, userID, term string) error {
	normalized := strings.ToLower(strings.TrimSpace(term))
	if len([]rune(normalized)) < minSearchTermLength {
		return t.skip(userID, "mark_metric_search_used", "search term too short")
	}
	return t.update(ctx, userID, "mark_metric_search_used", func(s *State) bool {
		if s.Meta.LastMetricSearchTerm != nil && *s.Meta.LastMetricSearchTerm == normalized {
			return false
		}
		s.Meta.LastMetricSearchTerm = &normalized
		s.Meta.MetricSearchUsedCount++
		return true
	})
}

// MarkMetricSearchClick completes the search task when a result is clicked
// while a qualifying search term is active.
func (t *Tracker) MarkMetricSearchClick(ctx context.Context, userID, term, metricID string) error {
	if len([]rune(strings.TrimSpace(term))) < minSearchTermLength {
		return t.skip(userID, "mark_metric_search_click", "no active search")
	}
	clicked := strings.TrimSpace(metricID)
	return t.update(ctx, userID, "mark_metric_search_click", func(s *State) bool {
		s.Meta.MetricSearchClickCount++
		s.Meta.MetricSearchTaskDone = true
		s.Meta.LastMetricSearchClickedMetricID = &clicked
		return true
	})
}

// AddChatEntry appends a judged interaction and bumps the progress ratchet in
// the same write. Once QuestionsRequired is reached further entries are
// ignored even if earlier ones were removed.
func (t *Tracker) AddChatEntry(ctx context.Context, userID string, in ChatEntryInput) error {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return t.skip(userID, "add_chat_entry", "empty question")
	}

	entry := ChatEntry{
		Question:        question,
		Model:           strings.TrimSpace(in.Model),
		MetricID:        strings.TrimSpace(in.MetricID),
		MetricName:      strings.TrimSpace(in.MetricName),
		CreatedAt:       in.CreatedAt,
		ChosenText:      in.ChosenText,
		PreferredOption: preferredOptionOf(in.PreferredOption),
		Ratings: Ratings{
			Option1: ratingOf(in.Ratings.Option1),
			Option2: ratingOf(in.Ratings.Option2),
		},
		Option1Variant: variantOf(in.Option1Variant),
		Option2Variant: variantOf(in.Option2Variant),
		Rating:         ratingOf(in.Rating),
	}
	if len(in.AnswerOrder) > 0 && json.Valid(in.AnswerOrder) && string(in.AnswerOrder) != "null" {
		entry.AnswerOrder = in.AnswerOrder
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = t.store.Now().UTC().Format(createdAtLayout)
	}

	return t.update(ctx, userID, "add_chat_entry", func(s *State) bool {
		if ChatCompletedCount(*s) >= t.requirements.QuestionsRequired {
			return false
		}
		s.ChatEntries = append(s.ChatEntries, entry)
		s.Meta.ChatCompletedCount = ChatCompletedCount(*s) + 1
		return true
	})
}

// ClearChatEntries drops the history. Progress is kept.
func (t *Tracker) ClearChatEntries(ctx context.Context, userID string) error {
	return t.update(ctx, userID, "clear_chat_entries", func(s *State) bool {
		if len(s.ChatEntries) == 0 {
			return false
		}
		s.ChatEntries = []ChatEntry{}
		return true
	})
}

// RemoveChatEntryByKey removes the entries matching (question, createdAt)
// exactly. Progress is kept.
func (t *Tracker) RemoveChatEntryByKey(ctx context.Context, userID, question, createdAt string) error {
	if question == "" || createdAt == "" {
		return t.skip(userID, "remove_chat_entry", "incomplete entry key")
	}
	return t.update(ctx, userID, "remove_chat_entry", func(s *State) bool {
		kept := s.ChatEntries[:0:0]
		for _, e := range s.ChatEntries {
			if !e.SameKey(question, createdAt) {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(s.ChatEntries) {
			return false
		}
		s.ChatEntries = kept
		return true
	})
}

// SetChatEntryRating sets the single legacy rating of an entry.
func (t *Tracker) SetChatEntryRating(ctx context.Context, userID, question, createdAt string, rating any) error {
	r := ratingOf(rating)
	if question == "" || createdAt == "" || r == nil {
		return t.skip(userID, "set_chat_entry_rating", "invalid rating or key")
	}
	return t.update(ctx, userID, "set_chat_entry_rating", func(s *State) bool {
		changed := false
		for i := range s.ChatEntries {
			if s.ChatEntries[i].SameKey(question, createdAt) {
				v := *r
				s.ChatEntries[i].Rating = &v
				changed = true
			}
		}
		return changed
	})
}

// SetChatEntryRatings sets both answer ratings of an entry, keeping legacy
// entries in their rag/norag shape. A missing legacy single rating is
// backfilled with the rounded mean.
func (t *Tracker) SetChatEntryRatings(ctx context.Context, userID, question, createdAt string, first, second any) error {
	r1, r2 := ratingOf(first), ratingOf(second)
	if question == "" || createdAt == "" || r1 == nil || r2 == nil {
		return t.skip(userID, "set_chat_entry_ratings", "invalid ratings or key")
	}
	mean := int(math.Round(float64(*r1+*r2) / 2))

	return t.update(ctx, userID, "set_chat_entry_ratings", func(s *State) bool {
		changed := false
		for i := range s.ChatEntries {
			e := &s.ChatEntries[i]
			if !e.SameKey(question, createdAt) {
				continue
			}
			a, b := *r1, *r2
			if e.Ratings.Legacy {
				e.Ratings = Ratings{RAG: &a, NoRAG: &b, Legacy: true}
			} else {
				e.Ratings = Ratings{Option1: &a, Option2: &b}
			}
			if e.Rating == nil {
				m := mean
				e.Rating = &m
			}
			changed = true
		}
		return changed
	})
}

// MarkFeedbackSent closes the experiment flow.
func (t *Tracker) MarkFeedbackSent(ctx context.Context, userID string) error {
	return t.update(ctx, userID, "mark_feedback_sent", func(s *State) bool {
		now := t.store.Now()
		s.FinalFeedback = FinalFeedback{Sent: true, SentAt: &now}
		return true
	})
}

// ResetExperiment deletes the user's record entirely.
func (t *Tracker) ResetExperiment(ctx context.Context, userID string) error {
	err := t.store.Erase(ctx, userID)
	observeMutation("reset_experiment", err == nil, err)
	if err == nil {
		t.logger.WithField("user_id", UserKey(userID)).Info("Experiment state reset")
	}
	return err
}

// State returns the user's current normalized state.
func (t *Tracker) State(ctx context.Context, userID string) (State, error) {
	return t.store.Read(ctx, userID)
}

// Progress returns the derived gate view of the user's state.
func (t *Tracker) Progress(ctx context.Context, userID string) (Progress, error) {
	s, err := t.store.Read(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	return t.requirements.ProgressOf(userID, s), nil
}

// VisitedMetrics lists visited metric ids in ascending order.
func (t *Tracker) VisitedMetrics(ctx context.Context, userID string) ([]string, error) {
	s, err := t.store.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return VisitedMetricIDs(s), nil
}

// ChatEntries returns the stored history, oldest first.
func (t *Tracker) ChatEntries(ctx context.Context, userID string) ([]ChatEntry, error) {
	s, err := t.store.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ChatEntries, nil
}

func (t *Tracker) MetricSearchUsedCount(ctx context.Context, userID string) (int, error) {
	s, err := t.store.Read(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.Meta.MetricSearchUsedCount, nil
}

func (t *Tracker) MetricSearchClickCount(ctx context.Context, userID string) (int, error) {
	s, err := t.store.Read(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.Meta.MetricSearchClickCount, nil
}

func (t *Tracker) update(ctx context.Context, userID, operation string, fn func(*State) bool) error {
	_, changed, err := t.store.Update(ctx, userID, fn)
	observeMutation(operation, changed, err)
	if err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   UserKey(userID),
			"operation": operation,
		}).Error("Experiment state mutation failed")
		return err
	}
	if !changed {
		t.ignored(userID, operation, "no change")
	}
	return nil
}

func (t *Tracker) skip(userID, operation, reason string) error {
	observeMutation(operation, false, nil)
	t.ignored(userID, operation, reason)
	return nil
}

func (t *Tracker) ignored(userID, operation, reason string) {
	t.logger.WithFields(logrus.Fields{
		"user_id":   UserKey(userID),
		"operation": operation,
		"reason":    reason,
	}).Debug("Experiment mutation ignored")
}
