package tests

import (
	"errors"
	"net/http"
	"testing"
	"thesis_tracker/tracker/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSetAndGetDeadlines(t *testing.T) {
	env := setupTestEnv(t)

	deadlines, err := env.admin.getDeadlines()
	require.NoError(t, err)
	assert.Empty(t, deadlines)

	require.NoError(t, env.admin.setDeadlines(map[string]string{
		"1": "2025-01-01",
		"2": "2025-02-01",
	}))

	student := env.newAccount(t, schema.Student, "lena")
	deadlines, err = student.getDeadlines()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"1": {"2025-01-01"},
		"2": {"2025-02-01"},
	}, deadlines)

	// Writing a phase again replaces its date.
	require.NoError(t, env.admin.setDeadlines(map[string]string{"1": "2025-01-20", "3": "2025-03-01T17:30:00Z"}))
	deadlines, err = env.admin.getDeadlines()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-20"}, deadlines["1"])
	assert.Equal(t, []string{"2025-03-01T17:30:00Z"}, deadlines["3"])

	var count int64
	require.NoError(t, env.db.Model(&schema.SubmissionDate{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	err = student.setDeadlines(map[string]string{"1": "2024-04-01"})
	assert.Equal(t, http.StatusForbidden, statusOf(err))
}

func TestSetDeadlinesIsAllOrNothing(t *testing.T) {
	env := setupTestEnv(t)

	err := env.admin.setDeadlines(map[string]string{
		"1": "2024-03-10",
		"2": "next tuesday",
	})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	err = env.admin.setDeadlines(map[string]string{
		"1": "2024-03-10",
		"7": "2024-03-10",
	})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	err = env.admin.setDeadlines(map[string]string{"first": "2024-03-10"})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	deadlines, err := env.admin.getDeadlines()
	require.NoError(t, err)
	assert.Empty(t, deadlines)
}

func TestSetDeadlinesRollsBackOnWriteFailure(t *testing.T) {
	env := setupTestEnv(t)

	require.NoError(t, env.admin.setDeadlines(map[string]string{"1": "2025-01-01"}))

	// Fail the phase 2 write after phase 1 has been overwritten in the same
	// transaction.
	err := env.db.Callback().Create().Before("gorm:create").Register("fail_phase_two", func(db *gorm.DB) {
		if record, ok := db.Statement.Dest.(*schema.SubmissionDate); ok && record.Phase == 2 {
			db.AddError(errors.New("write failed"))
		}
	})
	require.NoError(t, err)

	err = env.admin.setDeadlines(map[string]string{"1": "2026-06-06", "2": "2026-07-07"})
	assert.Equal(t, http.StatusInternalServerError, statusOf(err))

	deadlines, err := env.admin.getDeadlines()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"1": {"2025-01-01"}}, deadlines)

	require.NoError(t, env.db.Callback().Create().Remove("fail_phase_two"))
	require.NoError(t, env.admin.setDeadlines(map[string]string{"1": "2026-06-06", "2": "2026-07-07"}))

	deadlines, err = env.admin.getDeadlines()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"1": {"2026-06-06"}, "2": {"2026-07-07"}}, deadlines)
}
