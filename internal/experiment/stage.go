package experiment

// Stage is the participant's position in the linear experiment flow. Stages
// only move forward until a reset.
type Stage string

const (
	StageLocked           Stage = "locked"
	StageMetricsExplored  Stage = "metrics_explored"
	StageSearchDone       Stage = "search_done"
	StageFeedbackUnlocked Stage = "feedback_unlocked"
	StageFeedbackSent     Stage = "feedback_sent"
)

// StageOf derives the stage from a state. Completing the questions unlocks
// feedback directly, so there is no separate questions-done stage.
func (r Requirements) StageOf(s State) Stage {
	switch {
	case s.FinalFeedback.Sent:
		return StageFeedbackSent
	case r.CanAccessFeedback(s):
		return StageFeedbackUnlocked
	case r.CanAccessChatbot(s):
		return StageSearchDone
	case MetricsVisitedCount(s) >= r.MetricsRequired:
		return StageMetricsExplored
	default:
		return StageLocked
	}
}

// Progress is the derived view the UI banner renders.
type Progress struct {
	UserID             string       `json:"userId" yaml:"user_id"`
	Stage              Stage        `json:"stage" yaml:"stage"`
	Step               int          `json:"step" yaml:"step"`
	MetricsVisited     int          `json:"metricsVisited" yaml:"metrics_visited"`
	ChatCompleted      int          `json:"chatCompleted" yaml:"chat_completed"`
	ChatEntries        int          `json:"chatEntries" yaml:"chat_entries"`
	MetricSearchUsed   int          `json:"metricSearchUsed" yaml:"metric_search_used"`
	MetricSearchClicks int          `json:"metricSearchClicks" yaml:"metric_search_clicks"`
	MetricSearchDone   bool         `json:"metricSearchDone" yaml:"metric_search_done"`
	CanAccessChatbot   bool         `json:"canAccessChatbot" yaml:"can_access_chatbot"`
	CanAccessFeedback  bool         `json:"canAccessFeedback" yaml:"can_access_feedback"`
	FeedbackSent       bool         `json:"feedbackSent" yaml:"feedback_sent"`
	Requirements       Requirements `json:"requirements" yaml:"requirements"`
}

// ProgressOf summarizes a state against the requirements. Step is 1 while
// exploring metrics, 2 while chatting and 3 once feedback is open.
func (r Requirements) ProgressOf(userID string, s State) Progress {
	p := Progress{
		UserID:             UserKey(userID),
		Stage:              r.StageOf(s),
		MetricsVisited:     MetricsVisitedCount(s),
		ChatCompleted:      ChatCompletedCount(s),
		ChatEntries:        len(s.ChatEntries),
		MetricSearchUsed:   s.Meta.MetricSearchUsedCount,
		MetricSearchClicks: s.Meta.MetricSearchClickCount,
		MetricSearchDone:   HasCompletedMetricSearchTask(s),
		CanAccessChatbot:   r.CanAccessChatbot(s),
		CanAccessFeedback:  r.CanAccessFeedback(s),
		FeedbackSent:       s.FinalFeedback.Sent,
		Requirements:       r,
	}
	switch {
	case p.CanAccessFeedback:
		p.Step = 3
	case p.CanAccessChatbot:
		p.Step = 2
	default:
		p.Step = 1
	}
	return p
}
