package experiment

// migration upgrades a raw document from one schema version to the next.
// Migrations never mutate their input.
type migration func(doc map[string]any) map[string]any

var migrations = map[int]migration{
	1: migrateV1ToV2,
	2: migrateV2ToV3,
}

// migrate runs the raw document through every step between its recorded
// version and CurrentVersion. Documents without meta.version are version 1.
func migrate(doc map[string]any) map[string]any {
	out := cloneMap(doc)
	for v := schemaVersion(out); v < CurrentVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			break
		}
		out = step(out)
	}
	return out
}

func schemaVersion(doc map[string]any) int {
	v, ok := asCount(asMap(doc["meta"])["version"])
	if !ok || v < 1 {
		return 1
	}
	return v
}

// v2 introduced the chat progress ratchet and per-slot ratings.
func migrateV1ToV2(doc map[string]any) map[string]any {
	out := cloneMap(doc)
	meta := cloneMap(asMap(doc["meta"]))
	entries := asSlice(doc["chatEntries"])

	if _, ok := asCount(meta["chatCompletedCount"]); !ok {
		meta["chatCompletedCount"] = len(entries)
	}

	upgraded := make([]any, 0, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			upgraded = append(upgraded, raw)
			continue
		}
		upgraded = append(upgraded, withSlotRatings(entry))
	}

	meta["version"] = 2
	out["meta"] = meta
	out["chatEntries"] = upgraded
	return out
}

// v3 introduced the metric search task.
func migrateV2ToV3(doc map[string]any) map[string]any {
	out := cloneMap(doc)
	meta := cloneMap(asMap(doc["meta"]))

	setDefault(meta, "metricSearchUsedCount", 0)
	setDefault(meta, "metricSearchClickCount", 0)
	setDefault(meta, "metricSearchTaskDone", false)
	setDefault(meta, "lastMetricSearchTerm", nil)
	setDefault(meta, "lastMetricSearchClickedMetricId", nil)

	meta["version"] = 3
	out["meta"] = meta
	return out
}

// withSlotRatings copies the flat per-slot rating fields of an entry into
// ratings.option1/option2 when those are unset. Repair runs it on every
// entry too, so flat fields on an already-current record are not lost.
func withSlotRatings(entry map[string]any) map[string]any {
	o1 := firstPresent(entry, "ratingOption1", "rating_option1")
	o2 := firstPresent(entry, "ratingOption2", "rating_option2")
	if o1 == nil && o2 == nil {
		return entry
	}

	e := cloneMap(entry)
	filled := cloneMap(asMap(entry["ratings"]))
	if filled["option1"] == nil {
		filled["option1"] = o1
	}
	if filled["option2"] == nil {
		filled["option2"] = o2
	}
	e["ratings"] = filled
	return e
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
