package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepositoryImpl implements DocumentRepository on one gorm table
type DocumentRepositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDocumentRepository(db *gorm.DB) models.DocumentRepository {
	return &DocumentRepositoryImpl{db: db, now: time.Now}
}

func (r *DocumentRepositoryImpl) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	var doc models.ExperimentDocument
	err := r.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Document{Exists: false}, nil
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return models.Document{
		Exists:    true,
		Data:      []byte(doc.Data),
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// SetDocument writes a JSON object. With opts.Merge, the written top-level
// fields replace their stored counterparts and other stored fields survive.
func (r *DocumentRepositoryImpl) SetDocument(ctx context.Context, collection, id string, data []byte, opts models.SetOptions) error {
	var incoming map[string]any
	if err := json.Unmarshal(data, &incoming); err != nil {
		return fmt.Errorf("document %s/%s must be a JSON object: %w", collection, id, err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payload := incoming
		if opts.Merge {
			var existing models.ExperimentDocument
			err := tx.Where("collection = ? AND doc_id = ?", collection, id).First(&existing).Error
			switch {
			case err == nil:
				var stored map[string]any
				if jsonErr := json.Unmarshal([]byte(existing.Data), &stored); jsonErr == nil {
					payload = mergeFields(stored, incoming)
				}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("failed to load document %s/%s: %w", collection, id, err)
			}
		}

		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode document %s/%s: %w", collection, id, err)
		}

		now := r.now()
		doc := models.ExperimentDocument{
			BaseModel:  models.BaseModel{CreatedAt: now, UpdatedAt: now},
			Collection: collection,
			DocID:      id,
			Data:       string(encoded),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&doc).Error
	})
}

func (r *DocumentRepositoryImpl) DeleteDocument(ctx context.Context, collection, id string) error {
	return r.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&models.ExperimentDocument{}).Error
}

func mergeFields(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// FeedbackSubmissionRepositoryImpl implements FeedbackSubmissionRepository
type FeedbackSubmissionRepositoryImpl struct {
	db *gorm.DB
}

func NewFeedbackSubmissionRepository(db *gorm.DB) models.FeedbackSubmissionRepository {
	return &FeedbackSubmissionRepositoryImpl{db: db}
}

func (r *FeedbackSubmissionRepositoryImpl) Create(ctx context.Context, submission *models.FeedbackSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *FeedbackSubmissionRepositoryImpl) Exists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FeedbackSubmission{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

func (r *FeedbackSubmissionRepositoryImpl) GetByUserID(ctx context.Context, userID string) (*models.FeedbackSubmission, error) {
	var submission models.FeedbackSubmission
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *FeedbackSubmissionRepositoryImpl) GetRecent(ctx context.Context, limit int) ([]models.FeedbackSubmission, error) {
	var submissions []models.FeedbackSubmission
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&submissions).Error
	return submissions, err
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

// UpdateServiceHealth keeps the latest check per service
func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error {
	health := models.SystemHealth{
		ServiceName:    serviceName,
		Status:         status,
		ResponseTimeMs: responseTime,
		ErrorMessage:   errorMsg,
		CheckedAt:      time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "response_time_ms", "error_message", "checked_at"}),
	}).Create(&health).Error
}

func (r *SystemHealthRepositoryImpl) GetServiceHealth(serviceName string) (*models.SystemHealth, error) {
	var health models.SystemHealth
	err := r.db.Where("service_name = ?", serviceName).First(&health).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &health, nil
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Order("service_name").Find(&health).Error
	return health, err
}

func (r *SystemHealthRepositoryImpl) GetUnhealthyServices() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Where("status <> ?", "healthy").
		Order("service_name").
		Find(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Documents    models.DocumentRepository
	Feedback     models.FeedbackSubmissionRepository
	SystemHealth models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Documents:    NewDocumentRepository(db),
		Feedback:     NewFeedbackSubmissionRepository(db),
		SystemHealth: NewSystemHealthRepository(db),
	}
}
