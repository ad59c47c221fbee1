package tests

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/tracker/workflow"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitBeforeDeadline(t *testing.T) {
	env := setupTestEnv(t)

	g := env.newGroup(t, "Compilers")
	env.setDeadline(t, workflow.FirstPhase, "2024-03-10")

	submission, err := g.student.submit(g.thesis.Id,
		upload{name: "chapter1.pdf", content: "first chapter"},
		upload{name: "notes.txt", content: "notes"},
	)
	require.NoError(t, err)
	assert.Equal(t, g.student.accountId, submission.Submitter)
	assert.Equal(t, workflow.FirstPhase, submission.Phase)
	assert.True(t, env.clock.Now().Equal(submission.Submitted))

	thesis, err := g.student.getThesis(g.thesis.Id)
	require.NoError(t, err)
	assert.Equal(t, workflow.ForChecking, thesis.Status)
	require.NotNil(t, thesis.Submission.Latest)
	assert.Equal(t, submission.Id, *thesis.Submission.Latest)

	latest, err := g.adviser.latestSubmission(g.thesis.Id)
	require.NoError(t, err)
	assert.Equal(t, submission.Id, latest.Id)
	require.Len(t, latest.Attachments, 2)
	assert.Equal(t, "chapter1.pdf", latest.Attachments[0].OriginalName)
	assert.Equal(t, int64(len("first chapter")), latest.Attachments[0].Size)
	assert.Equal(t, "notes.txt", latest.Attachments[1].OriginalName)

	// The payload is in storage under the attachment key.
	key := storage.AttachmentKey(g.thesis.Id, submission.Id, latest.Attachments[0].Id)
	reader, err := env.storage.Read(context.Background(), key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, "first chapter", string(data))
}

func TestSubmitAfterDeadline(t *testing.T) {
	env := setupTestEnv(t)

	g := env.newGroup(t, "Databases")

	_, err := g.student.submit(g.thesis.Id, upload{name: "draft.pdf", content: "draft"})
	assert.Equal(t, http.StatusForbidden, statusOf(err), "no deadline set")

	env.setDeadline(t, workflow.FirstPhase, "2024-03-01T12:00:00Z")

	// The deadline itself is already too late.
	_, err = g.student.submit(g.thesis.Id, upload{name: "draft.pdf", content: "draft"})
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	env.clock.Set(time.Date(2024, 3, 1, 11, 59, 59, 0, time.UTC))
	_, err = g.student.submit(g.thesis.Id, upload{name: "draft.pdf", content: "draft"})
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&schema.Submission{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmitRejections(t *testing.T) {
	env := setupTestEnv(t)

	g := env.newGroup(t, "Networks")
	other := env.newGroup(t, "Graphics")
	env.setDeadline(t, workflow.FirstPhase, "2024-12-31")

	_, err := g.adviser.submit(g.thesis.Id, upload{name: "a.pdf", content: "a"})
	assert.Equal(t, http.StatusForbidden, statusOf(err), "faculty cannot submit")

	_, err = other.student.submit(g.thesis.Id, upload{name: "a.pdf", content: "a"})
	assert.Equal(t, http.StatusForbidden, statusOf(err), "only authors submit")

	_, err = g.student.submit(uuid.New(), upload{name: "a.pdf", content: "a"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	// A multipart form with no files is accepted by admission but records nothing.
	_, err = g.student.submit(g.thesis.Id)
	assert.Equal(t, http.StatusInternalServerError, statusOf(err))

	err = g.student.Post(thesisUrl(g.thesis.Id) + "/submission").Json(map[string]string{"file": "x"}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	var count int64
	require.NoError(t, env.db.Model(&schema.Submission{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// Locked theses take no more submissions.
	require.NoError(t, env.admin.deleteThesis(g.thesis.Id))
	_, err = g.student.submit(g.thesis.Id, upload{name: "a.pdf", content: "a"})
	assert.Equal(t, http.StatusForbidden, statusOf(err))
}

func TestLatestSubmissionOrdering(t *testing.T) {
	env := setupTestEnv(t)

	g := env.newGroup(t, "Ordering")
	env.setDeadline(t, workflow.FirstPhase, "2024-12-31")

	_, err := g.student.latestSubmission(g.thesis.Id)
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	first, err := g.student.submit(g.thesis.Id, upload{name: "v1.pdf", content: "v1"})
	require.NoError(t, err)

	env.clock.Set(env.clock.Now().Add(time.Hour))
	second, err := g.student.submit(g.thesis.Id, upload{name: "v2.pdf", content: "v2"})
	require.NoError(t, err)

	latest, err := g.student.latestSubmission(g.thesis.Id)
	require.NoError(t, err)
	assert.Equal(t, second.Id, latest.Id)

	theses, err := g.student.listTheses("?getSubmissions=true")
	require.NoError(t, err)
	require.Len(t, theses, 1)
	require.Len(t, theses[0].Submissions, 2)
	assert.Equal(t, second.Id, theses[0].Submissions[0].Id)
	assert.Equal(t, first.Id, theses[0].Submissions[1].Id)

	detail, err := g.adviser.getThesisWithSubmissions(g.thesis.Id)
	require.NoError(t, err)
	require.Len(t, detail.Submissions, 2)
	assert.Equal(t, second.Id, detail.Submissions[0].Id)
	assert.Equal(t, first.Id, detail.Submissions[1].Id)
	require.Len(t, detail.Submissions[1].Attachments, 1)
	assert.Equal(t, "v1.pdf", detail.Submissions[1].Attachments[0].OriginalName)
	assert.Equal(t, int64(len("v1")), detail.Submissions[1].Attachments[0].Size)

	detail, err = g.adviser.getThesis(g.thesis.Id)
	require.NoError(t, err)
	assert.Empty(t, detail.Submissions)
	require.NotNil(t, detail.Submission.Latest)
	assert.Equal(t, second.Id, *detail.Submission.Latest)

	theses, err = g.student.listTheses("")
	require.NoError(t, err)
	assert.Empty(t, theses[0].Submissions)
	require.NotNil(t, theses[0].Submission.Latest)
	assert.Equal(t, second.Id, *theses[0].Submission.Latest)

	var single submissionView
	require.NoError(t, g.adviser.Get(fmt.Sprintf("%v/submission/%v", thesisUrl(g.thesis.Id), first.Id)).Do(&single))
	assert.Equal(t, first.Id, single.Id)
	require.Len(t, single.Attachments, 1)
	assert.Equal(t, "v1.pdf", single.Attachments[0].OriginalName)
}

func TestDownloadAttachment(t *testing.T) {
	env := setupTestEnv(t)

	g := env.newGroup(t, "Download")
	other := env.newGroup(t, "Elsewhere")
	env.setDeadline(t, workflow.FirstPhase, "2024-12-31")

	submission, err := g.student.submit(g.thesis.Id, upload{name: "final report.pdf", content: "the report"})
	require.NoError(t, err)

	latest, err := g.student.latestSubmission(g.thesis.Id)
	require.NoError(t, err)
	require.Len(t, latest.Attachments, 1)
	attachment := latest.Attachments[0]

	url := fmt.Sprintf("%v/submission/%v/attachment/%v", thesisUrl(g.thesis.Id), submission.Id, attachment.Id)

	res, err := g.adviser.Get(url).Raw()
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "the report", string(body))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "final report.pdf")

	// The submission must belong to the thesis in the path.
	otherUrl := fmt.Sprintf("%v/submission/%v/attachment/%v", thesisUrl(other.thesis.Id), submission.Id, attachment.Id)
	err = env.admin.Get(otherUrl).Do(nil)
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	err = env.admin.Get(fmt.Sprintf("%v/submission/%v/attachment/%v", thesisUrl(g.thesis.Id), submission.Id, uuid.New())).Do(nil)
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	err = other.student.Get(url).Do(nil)
	assert.Equal(t, http.StatusForbidden, statusOf(err))
}

func TestSubmissionRateLimit(t *testing.T) {
	env := setupTestEnvWith(t, testOptions{submissionLimit: 2})

	g := env.newGroup(t, "Limited")

	// Refused attempts leave the quota untouched.
	for i := 0; i < 3; i++ {
		_, err := g.student.submit(g.thesis.Id, upload{name: "early.pdf", content: "early"})
		assert.Equal(t, http.StatusForbidden, statusOf(err), "no deadline set")
	}

	env.setDeadline(t, workflow.FirstPhase, "2024-12-31")

	_, err := g.student.submit(g.thesis.Id)
	assert.Equal(t, http.StatusInternalServerError, statusOf(err), "no files")

	for i := 0; i < 2; i++ {
		_, err := g.student.submit(g.thesis.Id, upload{name: "v.pdf", content: "v"})
		require.NoError(t, err)
	}

	_, err = g.student.submit(g.thesis.Id, upload{name: "v.pdf", content: "v"})
	assert.Equal(t, http.StatusTooManyRequests, statusOf(err))

	var count int64
	require.NoError(t, env.db.Model(&schema.Submission{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// The quota is per account.
	other := env.newGroup(t, "Unlimited")
	_, err = other.student.submit(other.thesis.Id, upload{name: "v.pdf", content: "v"})
	require.NoError(t, err)
}
