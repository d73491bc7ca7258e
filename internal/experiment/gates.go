package experiment

// Requirements are the static thresholds of the gating predicates.
type Requirements struct {
	MetricsRequired      int `mapstructure:"metrics_required" json:"metricsRequired" yaml:"metrics_required" validate:"min=1"`
	QuestionsRequired    int `mapstructure:"questions_required" json:"questionsRequired" yaml:"questions_required" validate:"min=1"`
	MetricSearchRequired int `mapstructure:"metric_search_required" json:"metricSearchRequired" yaml:"metric_search_required" validate:"min=1"`
}

func DefaultRequirements() Requirements {
	return Requirements{
		MetricsRequired:      3,
		QuestionsRequired:    3,
		MetricSearchRequired: 1,
	}
}

// MetricsVisitedCount counts truthy metricsVisited entries.
func MetricsVisitedCount(s State) int {
	n := 0
	for _, visited := range s.MetricsVisited {
		if visited {
			n++
		}
	}
	return n
}

// ChatCompletedCount is the progress ratchet. Entries may have been removed
// since, so it is never recomputed from ChatEntries while it is valid.
func ChatCompletedCount(s State) int {
	if s.Meta.ChatCompletedCount >= 0 {
		return s.Meta.ChatCompletedCount
	}
	return len(s.ChatEntries)
}

// HasCompletedMetricSearchTask completes on the first qualifying click.
// MetricSearchRequired does not raise that bar.
func HasCompletedMetricSearchTask(s State) bool {
	return s.Meta.MetricSearchTaskDone || s.Meta.MetricSearchClickCount >= 1
}

func (r Requirements) CanAccessChatbot(s State) bool {
	return MetricsVisitedCount(s) >= r.MetricsRequired && HasCompletedMetricSearchTask(s)
}

func (r Requirements) CanAccessFeedback(s State) bool {
	return r.CanAccessChatbot(s) &&
		ChatCompletedCount(s) >= r.QuestionsRequired &&
		HasCompletedMetricSearchTask(s)
}

// VisitedMetricIDs returns the visited metric ids in sorted order.
func VisitedMetricIDs(s State) []string {
	return sortedKeys(s.MetricsVisited)
}
