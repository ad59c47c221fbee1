package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/tracker/workflow"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fixedUsage struct {
	storage.Storage
	usage storage.UsageStats
	err   error
}

func (f fixedUsage) Usage() (storage.UsageStats, error) {
	return f.usage, f.err
}

func TestCheckSufficientStorage(t *testing.T) {
	const gib = 1024 * 1024 * 1024

	// Unknown capacity is never rejected.
	assert.NoError(t, checkSufficientStorage(fixedUsage{}, 1<<40))

	small := fixedUsage{usage: storage.UsageStats{TotalBytes: 10 * gib, FreeBytes: 3 * gib}}
	assert.NoError(t, checkSufficientStorage(small, gib))

	err := checkSufficientStorage(small, 2*gib)
	assert.Equal(t, http.StatusInsufficientStorage, GetResponseCode(err))

	// Large disks keep at most 20GiB in reserve.
	large := fixedUsage{usage: storage.UsageStats{TotalBytes: 1000 * gib, FreeBytes: 25 * gib}}
	assert.NoError(t, checkSufficientStorage(large, 4*gib))
	assert.Error(t, checkSufficientStorage(large, 6*gib))

	broken := fixedUsage{err: errors.New("statfs failed")}
	assert.Equal(t, http.StatusInternalServerError, GetResponseCode(checkSufficientStorage(broken, 0)))
}

func TestGetResponseCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, GetResponseCode(CodedError(errors.New("taken"), http.StatusConflict)))
	assert.Equal(t, http.StatusForbidden, GetResponseCode(workflow.ErrThesisLocked))
	assert.Equal(t, http.StatusNotFound, GetResponseCode(fmt.Errorf("wrapped: %w", workflow.ErrThesisNotFound)))
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(ruleError(workflow.ErrEmptyStatus)))
	assert.Equal(t, http.StatusInternalServerError, GetResponseCode(ruleError(errors.New("disk on fire"))))
}

func TestConvertThesisLatestSubmission(t *testing.T) {
	student := &schema.Account{Id: uuid.New(), FirstName: "Ada", LastName: "Lovelace", Kind: schema.Student}
	thesis := schema.Thesis{
		Id:      uuid.New(),
		Title:   "Engines",
		Members: []schema.ThesisMember{{AccountId: student.Id, Role: schema.AuthorRole, Account: student}},
	}

	summary := convertThesis(thesis, nil, true)
	assert.Nil(t, summary.Submission.Latest)
	assert.Empty(t, summary.Submissions)
	assert.Nil(t, summary.Grade)
	assert.Equal(t, "Lovelace, Ada", summary.Authors[0].Name)

	newer := schema.Submission{Id: uuid.New(), Submitted: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}
	older := schema.Submission{Id: uuid.New(), Submitted: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

	summary = convertThesis(thesis, []schema.Submission{newer, older}, false)
	if assert.NotNil(t, summary.Submission.Latest) {
		assert.Equal(t, newer.Id, *summary.Submission.Latest)
	}
	assert.Nil(t, summary.Submissions)
}
