package models

import "encoding/json"

type SearchRequest struct {
	Term string `json:"term"`
}

type SearchClickRequest struct {
	Term     string `json:"term"`
	MetricID string `json:"metricId"`
}

type EntryKeyRequest struct {
	Question  string `json:"question"`
	CreatedAt string `json:"createdAt"`
}

type RatingRequest struct {
	Question  string      `json:"question"`
	CreatedAt string      `json:"createdAt"`
	Rating    interface{} `json:"rating"`
}

type RatingsRequest struct {
	Question  string      `json:"question"`
	CreatedAt string      `json:"createdAt"`
	Option1   interface{} `json:"option1"`
	Option2   interface{} `json:"option2"`
}

type FeedbackRequest struct {
	QuestionnaireID string          `json:"questionnaireId"`
	Answers         json.RawMessage `json:"answers" binding:"required"`
}

type SyncResponse struct {
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId"`
	Resolution string `json:"resolution"`
	Active     bool   `json:"active"`
}
