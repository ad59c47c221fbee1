package workflow

import (
	"testing"
	"thesis_tracker/tracker/schema"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeadlines(t *testing.T) {
	parsed, err := ParseDeadlines(map[string]string{"1": "2025-01-01", "2": "2025-02-01T10:30:00+02:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), parsed[1])
	assert.Equal(t, time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC), parsed[2])

	for _, body := range []map[string]string{
		{},
		{"0": "2025-01-01"},
		{"4": "2025-01-01"},
		{"one": "2025-01-01"},
		{"1": "January 1st"},
	} {
		_, err := ParseDeadlines(body)
		assert.Equal(t, BadRequest, kindOf(err), "body=%v", body)
	}
}

func TestFormatDeadlineRoundTrip(t *testing.T) {
	for _, value := range []string{"2025-01-01", "2025-02-01T08:30:00Z"} {
		parsed, err := ParseDeadline(value)
		require.NoError(t, err)
		assert.Equal(t, value, FormatDeadline(parsed))
	}
}

func TestGroupDeadlines(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	grouped := GroupDeadlines([]schema.SubmissionDate{
		{Phase: 2, Subphase: 1, Date: day(20)},
		{Phase: 1, Subphase: 0, Date: day(1)},
		{Phase: 2, Subphase: 0, Date: day(10)},
	})

	assert.Equal(t, map[int][]time.Time{
		1: {day(1)},
		2: {day(10), day(20)},
	}, grouped)
}
