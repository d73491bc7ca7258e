package experiment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkMetricVisited_RejectsMalformedIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"xyz", "", "t", "t1a", "7", " "} {
		require.NoError(t, f.tracker.MarkMetricVisited(ctx, "u1", id))
	}

	assert.Equal(t, 0, MetricsVisitedCount(f.state(t, "u1")))
	assert.Zero(t, f.notifier.count(), "no-ops must not notify")
}

func TestMarkMetricVisited_NormalizesAndCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.MarkMetricVisited(ctx, "u1", "T7"))
	require.NoError(t, f.tracker.MarkMetricVisited(ctx, "u1", " t7 "))

	s := f.state(t, "u1")
	assert.Equal(t, 1, MetricsVisitedCount(s))
	assert.True(t, s.MetricsVisited["t7"])
	assert.Equal(t, 1, f.notifier.count())

	visited, err := f.tracker.VisitedMetrics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t7"}, visited)
}

func TestMarkMetricSearchUsed_AntiSpam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", "abc"))
	}
	require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", " ABC "))
	require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", "a"))

	used, err := f.tracker.MetricSearchUsedCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", "abd"))
	require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", "abc"))

	s := f.state(t, "u1")
	assert.Equal(t, 3, s.Meta.MetricSearchUsedCount)
	require.NotNil(t, s.Meta.LastMetricSearchTerm)
	assert.Equal(t, "abc", *s.Meta.LastMetricSearchTerm)
	assert.False(t, HasCompletedMetricSearchTask(s), "searching alone does not complete the task")
}

func TestMarkMetricSearchUsed_SingleCharacterNeverCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", "a"))
	require.NoError(t, f.tracker.MarkMetricSearchUsed(ctx, "u1", "b"))
	assert.Zero(t, f.state(t, "u1").Meta.MetricSearchUsedCount)
}

func TestMarkMetricSearchClick_CompletionIsSticky(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.MarkMetricSearchClick(ctx, "u1", "ab", "t2"))
	s := f.state(t, "u1")
	assert.True(t, s.Meta.MetricSearchTaskDone)
	assert.Equal(t, 1, s.Meta.MetricSearchClickCount)
	require.NotNil(t, s.Meta.LastMetricSearchClickedMetricID)
	assert.Equal(t, "t2", *s.Meta.LastMetricSearchClickedMetricID)

	require.NoError(t, f.tracker.MarkMetricSearchClick(ctx, "u1", "", "t3"))
	require.NoError(t, f.tracker.ClearChatEntries(ctx, "u1"))

	s = f.state(t, "u1")
	assert.True(t, s.Meta.MetricSearchTaskDone)
	assert.True(t, HasCompletedMetricSearchTask(s))
	assert.Equal(t, 1, s.Meta.MetricSearchClickCount)
	assert.Equal(t, "t2", *s.Meta.LastMetricSearchClickedMetricID)
}

func TestAddChatEntry_CapAndRatchet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, c := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("q"+c, c)), "call %d", i)
	}

	s := f.state(t, "u1")
	assert.Equal(t, 3, ChatCompletedCount(s))
	assert.Len(t, s.ChatEntries, 3)
	assert.Equal(t, "q1", s.ChatEntries[0].Question, "oldest first")

	require.NoError(t, f.tracker.RemoveChatEntryByKey(ctx, "u1", "q2", "2"))
	assert.Equal(t, 3, ChatCompletedCount(f.state(t, "u1")))

	require.NoError(t, f.tracker.ClearChatEntries(ctx, "u1"))
	s = f.state(t, "u1")
	assert.Equal(t, 3, ChatCompletedCount(s))
	assert.Empty(t, s.ChatEntries)

	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("again", "6")))
	s = f.state(t, "u1")
	assert.Equal(t, 3, ChatCompletedCount(s), "cap is on the counter, not on the history")
	assert.Empty(t, s.ChatEntries)
}

func TestAddChatEntry_IgnoresBlankQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("   ", "1")))
	assert.Zero(t, ChatCompletedCount(f.state(t, "u1")))
	assert.Zero(t, f.notifier.count())
}

func TestAddChatEntry_NormalizesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := ChatEntryInput{
		Question:        "  what is latency?  ",
		Model:           " model-x ",
		PreferredOption: float64(7),
		Ratings:         RatingsInput{Option1: float64(9), Option2: "3"},
		Option1Variant:  "RAG",
		Option2Variant:  "rag",
		AnswerOrder:     json.RawMessage(`["norag", "rag"]`),
		Rating:          "abc",
	}
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", in))

	entries, err := f.tracker.ChatEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "what is latency?", e.Question)
	assert.Equal(t, "model-x", e.Model)
	assert.Equal(t, PreferredNone, e.PreferredOption)
	assert.Nil(t, e.Ratings.Option1, "out of range is discarded, not clamped")
	assert.Equal(t, intPtr(3), e.Ratings.Option2)
	assert.Nil(t, e.Option1Variant)
	require.NotNil(t, e.Option2Variant)
	assert.Equal(t, VariantRAG, *e.Option2Variant)
	assert.JSONEq(t, `["norag","rag"]`, string(e.AnswerOrder))
	assert.Nil(t, e.Rating)
	assert.Equal(t, "2025-03-14T09:26:53.589Z", e.CreatedAt)
}

func TestRemoveChatEntryByKey_MatchesExactPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("same", "2025-01-01T00:00:00.000Z")))
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("same", "2025-01-02T00:00:00.000Z")))

	require.NoError(t, f.tracker.RemoveChatEntryByKey(ctx, "u1", "same", "2025-01-02T00:00:00.000Z"))

	entries, err := f.tracker.ChatEntries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-01-01T00:00:00.000Z", entries[0].CreatedAt)

	require.NoError(t, f.tracker.RemoveChatEntryByKey(ctx, "u1", "same", ""))
	require.NoError(t, f.tracker.RemoveChatEntryByKey(ctx, "u1", "", "2025-01-01T00:00:00.000Z"))
	entries, err = f.tracker.ChatEntries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "incomplete keys never match")
}

func TestSetChatEntryRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("q", "c")))

	require.NoError(t, f.tracker.SetChatEntryRating(ctx, "u1", "q", "c", float64(4)))
	require.NoError(t, f.tracker.SetChatEntryRating(ctx, "u1", "q", "c", float64(11)))

	s := f.state(t, "u1")
	assert.Equal(t, intPtr(4), s.ChatEntries[0].Rating)
	assert.Equal(t, 1, s.Meta.ChatCompletedCount)
}

func TestSetChatEntryRatings_OptionShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("q", "c")))

	require.NoError(t, f.tracker.SetChatEntryRatings(ctx, "u1", "q", "c", float64(5), float64(2)))

	e := f.state(t, "u1").ChatEntries[0]
	assert.False(t, e.Ratings.Legacy)
	assert.Equal(t, intPtr(5), e.Ratings.Option1)
	assert.Equal(t, intPtr(2), e.Ratings.Option2)
	assert.Equal(t, intPtr(4), e.Rating, "round((5+2)/2) backfills the single rating")
}

func TestSetChatEntryRatings_LegacyShapeAndInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	legacy := `{"chatEntries":[{"question":"q","createdAt":"c","ratings":{"rag":1,"norag":1},"rating":2}],"meta":{"version":3,"chatCompletedCount":1}}`
	require.NoError(t, f.kv.Set(ctx, StorageKey("u1"), []byte(legacy)))

	require.NoError(t, f.tracker.SetChatEntryRatings(ctx, "u1", "q", "c", float64(3), float64(0)))
	e := f.state(t, "u1").ChatEntries[0]
	assert.Equal(t, intPtr(1), e.Ratings.RAG, "invalid pair is ignored")

	require.NoError(t, f.tracker.SetChatEntryRatings(ctx, "u1", "q", "c", float64(3), float64(4)))
	e = f.state(t, "u1").ChatEntries[0]
	assert.True(t, e.Ratings.Legacy)
	assert.Equal(t, intPtr(3), e.Ratings.RAG)
	assert.Equal(t, intPtr(4), e.Ratings.NoRAG)
	assert.Equal(t, intPtr(2), e.Rating, "existing single rating is kept")
}

func TestMarkFeedbackSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.MarkFeedbackSent(ctx, "u1"))

	s := f.state(t, "u1")
	assert.True(t, s.FinalFeedback.Sent)
	require.NotNil(t, s.FinalFeedback.SentAt)
	assert.True(t, testNow.Equal(*s.FinalFeedback.SentAt))
}

func TestResetExperiment_RestoresDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reqs := DefaultRequirements()

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, f.tracker.MarkMetricVisited(ctx, "u1", id))
	}
	require.NoError(t, f.tracker.MarkMetricSearchClick(ctx, "u1", "lat", "t1"))
	require.NoError(t, f.tracker.AddChatEntry(ctx, "u1", entry("q", "c")))
	require.NoError(t, f.tracker.MarkFeedbackSent(ctx, "u1"))

	require.NoError(t, f.tracker.ResetExperiment(ctx, "u1"))

	s := f.state(t, "u1")
	assert.Equal(t, DefaultState(), s)
	assert.Zero(t, MetricsVisitedCount(s))
	assert.Zero(t, ChatCompletedCount(s))
	assert.False(t, HasCompletedMetricSearchTask(s))
	assert.False(t, reqs.CanAccessChatbot(s))
	assert.False(t, reqs.CanAccessFeedback(s))
	assert.Equal(t, StageLocked, reqs.StageOf(s))
}
