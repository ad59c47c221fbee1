package workflow

import (
	"sort"
	"strconv"
	"thesis_tracker/tracker/schema"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDeadline accepts a plain date (midnight UTC) or an RFC 3339 timestamp.
func ParseDeadline(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, ruleErr(BadRequest, "invalid date '%v', expected YYYY-MM-DD or RFC 3339", value)
	}
	return t.UTC(), nil
}

// FormatDeadline is the inverse of ParseDeadline: dates at midnight UTC are
// written without a time part.
func FormatDeadline(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

// ParseDeadlines validates a phase→date body before anything is written.
func ParseDeadlines(entries map[string]string) (map[int]time.Time, error) {
	if len(entries) == 0 {
		return nil, ruleErr(BadRequest, "no deadlines provided")
	}

	parsed := make(map[int]time.Time, len(entries))
	for key, value := range entries {
		phase, err := strconv.Atoi(key)
		if err != nil || !ValidPhase(phase) {
			return nil, ruleErr(BadRequest, "invalid phase '%v', must be between %d and %d", key, FirstPhase, LastPhase)
		}
		date, err := ParseDeadline(value)
		if err != nil {
			return nil, err
		}
		parsed[phase] = date
	}
	return parsed, nil
}

// GroupDeadlines maps each phase to its dates ordered by subphase.
func GroupDeadlines(records []schema.SubmissionDate) map[int][]time.Time {
	sorted := make([]schema.SubmissionDate, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Phase != sorted[j].Phase {
			return sorted[i].Phase < sorted[j].Phase
		}
		return sorted[i].Subphase < sorted[j].Subphase
	})

	grouped := make(map[int][]time.Time)
	for _, record := range sorted {
		grouped[record.Phase] = append(grouped[record.Phase], record.Date)
	}
	return grouped
}
