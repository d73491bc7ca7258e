package experiment

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var metricIDPattern = regexp.MustCompile(`^t\d+$`)

// Normalize turns any decoded JSON value into a fully shaped State.
// Missing, stale-schema and wrong-typed fields are repaired, never rejected.
// Normalize is idempotent.
func Normalize(raw any) State {
	doc, _ := raw.(map[string]any)
	return repair(migrate(doc))
}

// NormalizeJSON decodes and normalizes a serialized state. Undecodable input
// yields the default state.
func NormalizeJSON(data []byte) State {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return DefaultState()
	}
	return Normalize(raw)
}

// NormalizeState re-runs normalization over an already typed state.
func NormalizeState(s State) State {
	data, err := json.Marshal(s)
	if err != nil {
		return DefaultState()
	}
	return NormalizeJSON(data)
}

func repair(doc map[string]any) State {
	s := DefaultState()

	for id, v := range asMap(doc["metricsVisited"]) {
		key := normalizeMetricID(id)
		if truthy(v) && validMetricID(key) {
			s.MetricsVisited[key] = true
		}
	}

	rawEntries := asSlice(doc["chatEntries"])
	for _, raw := range rawEntries {
		if m, ok := raw.(map[string]any); ok {
			s.ChatEntries = append(s.ChatEntries, repairEntry(m))
		}
	}

	fb := asMap(doc["finalFeedback"])
	s.FinalFeedback.Sent = truthy(fb["sent"])
	s.FinalFeedback.SentAt = timestampOf(fb["sentAt"])

	meta := asMap(doc["meta"])
	s.Meta.Version = CurrentVersion
	s.Meta.UpdatedAt = timestampOf(meta["updatedAt"])
	if n, ok := asCount(meta["chatCompletedCount"]); ok {
		s.Meta.ChatCompletedCount = n
	} else {
		s.Meta.ChatCompletedCount = len(rawEntries)
	}
	s.Meta.MetricSearchUsedCount, _ = asCount(meta["metricSearchUsedCount"])
	s.Meta.MetricSearchClickCount, _ = asCount(meta["metricSearchClickCount"])
	s.Meta.MetricSearchTaskDone, _ = meta["metricSearchTaskDone"].(bool)
	s.Meta.LastMetricSearchTerm = optString(meta["lastMetricSearchTerm"])
	s.Meta.LastMetricSearchClickedMetricID = optString(meta["lastMetricSearchClickedMetricId"])

	return s
}

func repairEntry(m map[string]any) ChatEntry {
	return ChatEntry{
		Question:        stringOf(m["question"]),
		Model:           stringOf(m["model"]),
		MetricID:        stringOf(m["metricId"]),
		MetricName:      stringOf(m["metricName"]),
		CreatedAt:       stringOf(m["createdAt"]),
		ChosenText:      stringOf(m["chosenText"]),
		PreferredOption: preferredOptionOf(m["preferredOption"]),
		Ratings:         ratingsOf(withSlotRatings(m)["ratings"]),
		Option1Variant:  variantOf(m["option1_variant"]),
		Option2Variant:  variantOf(m["option2_variant"]),
		AnswerOrder:     rawJSONOf(m["answerOrder"]),
		Rating:          ratingOf(m["rating"]),
	}
}

// ratingsOf prefers the per-slot shape whenever a slot rating is present and
// falls back to the legacy rag/norag shape otherwise.
func ratingsOf(v any) Ratings {
	m := asMap(v)
	o1, o2 := ratingOf(m["option1"]), ratingOf(m["option2"])
	if o1 != nil || o2 != nil {
		return Ratings{Option1: o1, Option2: o2}
	}
	return Ratings{
		RAG:    ratingOf(m["rag"]),
		NoRAG:  ratingOf(m["norag"]),
		Legacy: true,
	}
}

// ratingOf accepts a number (or numeric string), rounds it and keeps it only
// inside [1,5].
func ratingOf(v any) *int {
	n, ok := numberOf(v)
	if !ok {
		return nil
	}
	r := int(math.Round(n))
	if r < 1 || r > 5 {
		return nil
	}
	return &r
}

func preferredOptionOf(v any) int {
	n, ok := numberOf(v)
	if !ok || n != math.Trunc(n) {
		return PreferredNone
	}
	switch int(n) {
	case PreferredOption1, PreferredOption2, PreferredBoth:
		return int(n)
	}
	return PreferredNone
}

func variantOf(v any) *Variant {
	s, _ := v.(string)
	switch Variant(s) {
	case VariantRAG, VariantNoRAG:
		out := Variant(s)
		return &out
	}
	return nil
}

func rawJSONOf(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func normalizeMetricID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func validMetricID(id string) bool {
	return metricIDPattern.MatchString(id)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// maxCount is the largest integer a JSON number carries exactly.
const maxCount = 1 << 53

// asCount accepts finite non-negative numbers below maxCount only.
func asCount(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n >= maxCount {
			return 0, false
		}
		return int(n), true
	case int:
		return n, n >= 0 && n < maxCount
	case int64:
		return int(n), n >= 0 && n < maxCount
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return asCount(f)
	}
	return 0, false
}

func numberOf(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

func optString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// timestampOf accepts RFC 3339 strings and epoch milliseconds.
func timestampOf(v any) *time.Time {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return nil
		}
		t := time.UnixMilli(int64(x)).UTC()
		return &t
	}
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case string:
		return x != ""
	case nil:
		return false
	}
	return true
}
