package repository

import (
	"context"
	"testing"

	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/Ayash-Bera/metricslab/backend/internal/repository/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository_GetMissing(t *testing.T) {
	repo := NewDocumentRepository(testutil.DB(t))

	doc, err := repo.GetDocument(context.Background(), "experimentStates", "nobody")
	require.NoError(t, err)
	assert.False(t, doc.Exists)
}

func TestDocumentRepository_SetReplacesWithoutMerge(t *testing.T) {
	repo := NewDocumentRepository(testutil.DB(t))
	ctx := context.Background()

	require.NoError(t, repo.SetDocument(ctx, "c", "u1", []byte(`{"a": 1, "b": {"x": 1}}`), models.SetOptions{}))
	require.NoError(t, repo.SetDocument(ctx, "c", "u1", []byte(`{"b": {"y": 2}}`), models.SetOptions{}))

	doc, err := repo.GetDocument(ctx, "c", "u1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.JSONEq(t, `{"b": {"y": 2}}`, string(doc.Data))
	assert.False(t, doc.UpdatedAt.IsZero())
}

func TestDocumentRepository_SetMergeKeepsOtherFields(t *testing.T) {
	repo := NewDocumentRepository(testutil.DB(t))
	ctx := context.Background()

	require.NoError(t, repo.SetDocument(ctx, "c", "u1", []byte(`{"a": 1, "b": {"x": 1}}`), models.SetOptions{Merge: true}))
	require.NoError(t, repo.SetDocument(ctx, "c", "u1", []byte(`{"b": {"y": 2}, "c": "new"}`), models.SetOptions{Merge: true}))

	doc, err := repo.GetDocument(ctx, "c", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1, "b": {"y": 2}, "c": "new"}`, string(doc.Data), "written fields replace, others survive")
}

func TestDocumentRepository_DocumentsAreScopedByCollection(t *testing.T) {
	repo := NewDocumentRepository(testutil.DB(t))
	ctx := context.Background()

	require.NoError(t, repo.SetDocument(ctx, "one", "u1", []byte(`{"v": 1}`), models.SetOptions{}))
	require.NoError(t, repo.SetDocument(ctx, "two", "u1", []byte(`{"v": 2}`), models.SetOptions{}))

	doc, err := repo.GetDocument(ctx, "one", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v": 1}`, string(doc.Data))

	require.NoError(t, repo.DeleteDocument(ctx, "one", "u1"))
	doc, err = repo.GetDocument(ctx, "one", "u1")
	require.NoError(t, err)
	assert.False(t, doc.Exists)
	doc, err = repo.GetDocument(ctx, "two", "u1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
}

func TestDocumentRepository_RejectsNonObjects(t *testing.T) {
	repo := NewDocumentRepository(testutil.DB(t))
	err := repo.SetDocument(context.Background(), "c", "u1", []byte(`[1,2]`), models.SetOptions{})
	assert.Error(t, err)
}

func TestFeedbackSubmissionRepository(t *testing.T) {
	repo := NewFeedbackSubmissionRepository(testutil.DB(t))
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	sub := &models.FeedbackSubmission{
		UserID:               "u1",
		QuestionnaireID:      "final-v2",
		Answers:              `{"q1": 5}`,
		VisitedMetrics:       models.StringArray{"t1", "t2", "t3"},
		Questions:            `[]`,
		MetricSearchTaskDone: true,
	}
	require.NoError(t, repo.Create(ctx, sub))
	assert.NotZero(t, sub.ID)

	exists, err = repo.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := repo.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StringArray{"t1", "t2", "t3"}, got.VisitedMetrics)
	assert.True(t, got.MetricSearchTaskDone)

	assert.Error(t, repo.Create(ctx, &models.FeedbackSubmission{UserID: "u1"}), "one submission per user")
	assert.Error(t, repo.Create(ctx, &models.FeedbackSubmission{UserID: " "}), "user id is required")

	recent, err := repo.GetRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSystemHealthRepository_KeepsLatestPerService(t *testing.T) {
	repo := NewSystemHealthRepository(testutil.DB(t))

	require.NoError(t, repo.UpdateServiceHealth("redis", "healthy", 3, ""))
	require.NoError(t, repo.UpdateServiceHealth("redis", "unhealthy", 5000, "timeout"))
	require.NoError(t, repo.UpdateServiceHealth("postgresql", "healthy", 2, ""))
	assert.Error(t, repo.UpdateServiceHealth("nats", "sideways", 1, ""))

	all, err := repo.GetAllServicesHealth()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	redis, err := repo.GetServiceHealth("redis")
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", redis.Status)
	assert.Equal(t, "timeout", redis.ErrorMessage)

	unhealthy, err := repo.GetUnhealthyServices()
	require.NoError(t, err)
	require.Len(t, unhealthy, 1)
	assert.Equal(t, "redis", unhealthy[0].ServiceName)

	_, err = repo.GetServiceHealth("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
