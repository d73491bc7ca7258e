package models

// GORM models

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned by stores and repositories for a missing record.
var ErrNotFound = errors.New("record not found")

// StringArray is stored as a PostgreSQL array literal
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Remove curly braces and split
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExperimentDocument is one JSON document of the remote document service,
// addressed by (collection, doc_id).
type ExperimentDocument struct {
	BaseModel
	Collection string `json:"collection" gorm:"not null;uniqueIndex:idx_documents_collection_doc"`
	DocID      string `json:"doc_id" gorm:"column:doc_id;not null;uniqueIndex:idx_documents_collection_doc"`
	Data       string `json:"data" gorm:"type:text;not null"`
}

// FeedbackSubmission is the single final questionnaire submission of a
// participant.
type FeedbackSubmission struct {
	BaseModel
	UserID               string      `json:"user_id" gorm:"not null;uniqueIndex"`
	QuestionnaireID      string      `json:"questionnaire_id"`
	Answers              string      `json:"answers" gorm:"type:text"`
	VisitedMetrics       StringArray `json:"visited_metrics" gorm:"type:text"`
	Questions            string      `json:"questions" gorm:"type:text"`
	MetricSearchTaskDone bool        `json:"metric_search_task_done"`
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"not null;uniqueIndex"`
	Status         string    `json:"status" gorm:"not null"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Document is a remote document as seen by its readers.
type Document struct {
	Exists    bool
	Data      []byte
	UpdatedAt time.Time
}

// SetOptions mirrors the write options of the remote document service.
// With Merge the written fields are merged into the existing document.
type SetOptions struct {
	Merge bool
}

// Database interfaces for repository pattern
type DocumentRepository interface {
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	SetDocument(ctx context.Context, collection, id string, data []byte, opts SetOptions) error
	DeleteDocument(ctx context.Context, collection, id string) error
}

type FeedbackSubmissionRepository interface {
	Create(ctx context.Context, submission *FeedbackSubmission) error
	Exists(ctx context.Context, userID string) (bool, error)
	GetByUserID(ctx context.Context, userID string) (*FeedbackSubmission, error)
	GetRecent(ctx context.Context, limit int) ([]FeedbackSubmission, error)
}

type SystemHealthRepository interface {
	UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error
	GetServiceHealth(serviceName string) (*SystemHealth, error)
	GetAllServicesHealth() ([]SystemHealth, error)
	GetUnhealthyServices() ([]SystemHealth, error)
}

// TableName methods for custom table names
func (ExperimentDocument) TableName() string { return "experiment_documents" }
func (FeedbackSubmission) TableName() string { return "feedback_submissions" }
func (SystemHealth) TableName() string       { return "system_health" }

// Model validation methods
func (d *ExperimentDocument) Validate() error {
	if d.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if d.DocID == "" {
		return fmt.Errorf("document id is required")
	}
	return nil
}

func (f *FeedbackSubmission) Validate() error {
	if strings.TrimSpace(f.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

func (h *SystemHealth) Validate() error {
	validStatuses := map[string]bool{
		"healthy":   true,
		"degraded":  true,
		"unhealthy": true,
	}
	if !validStatuses[h.Status] {
		return fmt.Errorf("invalid health status: %s", h.Status)
	}
	return nil
}

// GORM hooks
func (d *ExperimentDocument) BeforeCreate(tx *gorm.DB) error {
	return d.Validate()
}

func (f *FeedbackSubmission) BeforeCreate(tx *gorm.DB) error {
	return f.Validate()
}

func (h *SystemHealth) BeforeSave(tx *gorm.DB) error {
	return h.Validate()
}

// AllModels lists every table managed by auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&ExperimentDocument{},
		&FeedbackSubmission{},
		&SystemHealth{},
	}
}
