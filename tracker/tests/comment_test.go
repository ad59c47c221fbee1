package tests

import (
	"fmt"
	"net/http"
	"testing"
	"thesis_tracker/tracker/schema"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComments(t *testing.T) {
	env := setupTestEnv(t)

	g := env.newGroup(t, "Discussed")
	outsider := env.newAccount(t, schema.Student, "mona")
	panelist := env.newAccount(t, schema.Faculty, "nils")

	first, err := g.adviser.addComment(g.thesis.Id, "please fix chapter 2")
	require.NoError(t, err)
	assert.Equal(t, g.adviser.accountId, first.Author.Id)
	assert.Equal(t, 1, first.Phase)

	env.clock.Set(env.clock.Now().Add(time.Minute))
	second, err := g.student.addComment(g.thesis.Id, "done")
	require.NoError(t, err)

	comments, err := g.student.listComments(g.thesis.Id)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, second.Id, comments[0].Id)
	assert.Equal(t, first.Id, comments[1].Id)
	assert.Equal(t, "Discussed_adviser@uni.edu", comments[1].Author.Email)

	// Staff outside the group may read and write, students may not.
	_, err = panelist.listComments(g.thesis.Id)
	require.NoError(t, err)

	_, err = outsider.listComments(g.thesis.Id)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	_, err = outsider.addComment(g.thesis.Id, "hello")
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	_, err = g.student.addComment(g.thesis.Id, "")
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = g.student.listComments(uuid.New())
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	commentUrl := func(id uuid.UUID) string {
		return fmt.Sprintf("%v/comment/%v", thesisUrl(g.thesis.Id), id)
	}

	// Only the author removes a comment, administrators included.
	err = env.admin.Delete(commentUrl(first.Id)).Do(nil)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	require.NoError(t, g.adviser.Delete(commentUrl(first.Id)).Do(nil))

	err = g.adviser.Delete(commentUrl(first.Id)).Do(nil)
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	comments, err = g.adviser.listComments(g.thesis.Id)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "done", comments[0].Text)
}
