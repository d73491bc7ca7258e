package experiment

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// CurrentVersion is the schema version stamped on every persisted state.
	CurrentVersion = 3

	// AnonymousUserID is used when no authenticated user is known.
	AnonymousUserID = "anonymous"

	storageKeyPrefix = "experimentState_v1__uid_"
)

// Variant tags which backend produced a displayed answer slot.
type Variant string

const (
	VariantRAG   Variant = "rag"
	VariantNoRAG Variant = "norag"
)

// Preferred option values. PreferredBoth is the "both answers" sentinel.
const (
	PreferredNone    = 0
	PreferredOption1 = 1
	PreferredOption2 = 2
	PreferredBoth    = 3
)

// Ratings holds the two per-answer ratings of a chat entry. Entries written
// before answer slots were anonymized carry the legacy rag/norag pair instead.
type Ratings struct {
	Option1 *int
	Option2 *int
	RAG     *int
	NoRAG   *int
	Legacy  bool
}

type optionRatings struct {
	Option1 *int `json:"option1"`
	Option2 *int `json:"option2"`
}

type legacyRatings struct {
	RAG   *int `json:"rag"`
	NoRAG *int `json:"norag"`
}

func (r Ratings) MarshalJSON() ([]byte, error) {
	if r.Legacy {
		return json.Marshal(legacyRatings{RAG: r.RAG, NoRAG: r.NoRAG})
	}
	return json.Marshal(optionRatings{Option1: r.Option1, Option2: r.Option2})
}

func (r *Ratings) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ratingsOf(raw)
	return nil
}

// ChatEntry is one saved, participant-judged chatbot interaction.
type ChatEntry struct {
	Question        string          `json:"question"`
	Model           string          `json:"model"`
	MetricID        string          `json:"metricId"`
	MetricName      string          `json:"metricName"`
	CreatedAt       string          `json:"createdAt"`
	ChosenText      string          `json:"chosenText"`
	PreferredOption int             `json:"preferredOption"`
	Ratings         Ratings         `json:"ratings"`
	Option1Variant  *Variant        `json:"option1_variant"`
	Option2Variant  *Variant        `json:"option2_variant"`
	AnswerOrder     json.RawMessage `json:"answerOrder"`
	Rating          *int            `json:"rating"`
}

// SameKey reports whether the entry is identified by (question, createdAt).
func (e ChatEntry) SameKey(question, createdAt string) bool {
	return e.Question == question && e.CreatedAt == createdAt
}

type FinalFeedback struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sentAt"`
}

type Meta struct {
	Version                         int        `json:"version"`
	UpdatedAt                       *time.Time `json:"updatedAt"`
	ChatCompletedCount              int        `json:"chatCompletedCount"`
	MetricSearchUsedCount           int        `json:"metricSearchUsedCount"`
	MetricSearchClickCount          int        `json:"metricSearchClickCount"`
	MetricSearchTaskDone            bool       `json:"metricSearchTaskDone"`
	LastMetricSearchTerm            *string    `json:"lastMetricSearchTerm"`
	LastMetricSearchClickedMetricID *string    `json:"lastMetricSearchClickedMetricId"`
}

// State is the per-user experiment progress record.
type State struct {
	MetricsVisited map[string]bool `json:"metricsVisited"`
	ChatEntries    []ChatEntry     `json:"chatEntries"`
	FinalFeedback  FinalFeedback   `json:"finalFeedback"`
	Meta           Meta            `json:"meta"`
}

// DefaultState returns the state of a participant who has done nothing yet.
func DefaultState() State {
	return State{
		MetricsVisited: map[string]bool{},
		ChatEntries:    []ChatEntry{},
		Meta:           Meta{Version: CurrentVersion},
	}
}

// UserKey maps a caller-supplied user id to the id used for storage.
func UserKey(userID string) string {
	id := strings.TrimSpace(userID)
	if id == "" {
		return AnonymousUserID
	}
	return id
}

// StorageKey is the local record key for a user.
func StorageKey(userID string) string {
	return storageKeyPrefix + UserKey(userID)
}
