package workflow

import (
	"testing"
	"thesis_tracker/tracker/schema"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeMembership(t *testing.T) {
	scope, err := Scope(student, "", false, "")
	require.NoError(t, err)
	require.NotNil(t, scope.MemberId)
	assert.Equal(t, student.Id, *scope.MemberId)

	scope, err = Scope(admin, "", false, "")
	require.NoError(t, err)
	assert.Nil(t, scope.MemberId)

	scope, err = Scope(admin, "false", true, "")
	require.NoError(t, err)
	assert.NotNil(t, scope.MemberId)

	scope, err = Scope(faculty, "", true, "")
	require.NoError(t, err)
	assert.Nil(t, scope.MemberId)

	_, err = Scope(faculty, "", false, "maybe")
	assert.Equal(t, BadRequest, kindOf(err))
}

func TestScopeVisible(t *testing.T) {
	approved, pending := true, false

	mine := authoredThesis(student)
	mine.Approved = &approved

	legacy := authoredThesis(student)

	waiting := authoredThesis(student)
	waiting.Approved = &pending

	other := newThesis(New)

	hidden := authoredThesis(student)
	hidden.Inactive = true

	scope, err := Scope(student, "", false, ShowApproved)
	require.NoError(t, err)
	assert.True(t, scope.Visible(mine))
	assert.True(t, scope.Visible(legacy))
	assert.False(t, scope.Visible(waiting))
	assert.False(t, scope.Visible(other))
	assert.False(t, scope.Visible(hidden))

	scope, _ = Scope(student, "", false, ShowPending)
	assert.False(t, scope.Visible(mine))
	assert.True(t, scope.Visible(waiting))

	scope, _ = Scope(student, "", false, ShowAll)
	assert.True(t, scope.Visible(mine))
	assert.True(t, scope.Visible(waiting))
	assert.False(t, scope.Visible(other))
}

func TestCommentVisibility(t *testing.T) {
	thesis := authoredThesis(student)
	assert.NoError(t, CanViewComments(thesis, student))
	assert.NoError(t, CanViewComments(thesis, faculty))

	outsider := schema.Account{Id: uuid.New(), Kind: schema.Student}
	assert.ErrorIs(t, CanViewComments(thesis, outsider), ErrCommentNotVisible)
}

func TestApplyGradesSkipsUnknownAccounts(t *testing.T) {
	second := schema.Account{Id: uuid.New(), Kind: schema.Student}
	thesis := authoredThesis(student)
	thesis.Members = append(thesis.Members, schema.ThesisMember{ThesisId: thesis.Id, AccountId: second.Id, Role: schema.AuthorRole, Position: 1})

	stranger := uuid.New()
	grades := map[uuid.UUID]Grade{
		student.Id: {Grade: 1.25, Remarks: "good"},
		second.Id:  {Grade: 2.0},
		stranger:   {Grade: 3.0},
		faculty.Id: {Grade: 1.0},
	}
	// second is an author but has no account on file
	accounts := map[uuid.UUID]schema.Account{student.Id: student, faculty.Id: faculty}

	updated, err := ApplyGrades(thesis, grades, accounts, faculty)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, student.Id, updated[0].Id)
	require.NotNil(t, updated[0].Grade)
	assert.Equal(t, 1.25, *updated[0].Grade)
	assert.Equal(t, "good", updated[0].Remarks)
	assert.Equal(t, New, thesis.Status)

	_, err = ApplyGrades(thesis, grades, accounts, student)
	assert.ErrorIs(t, err, ErrStudentForbidden)
}

func TestRecordThesisGrade(t *testing.T) {
	thesis := newThesis(Endorsed)
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	RecordThesisGrade(thesis, Grade{Grade: 2.0, Remarks: "first"}, first)
	RecordThesisGrade(thesis, Grade{Grade: 1.5, Remarks: "second"}, first.Add(time.Hour))

	latest := thesis.LatestGrade()
	require.NotNil(t, latest)
	assert.Equal(t, "second", latest.Remarks)
	assert.Len(t, thesis.Grades, 2)
}
