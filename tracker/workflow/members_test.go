package workflow

import (
	"testing"
	"thesis_tracker/tracker/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestMemberBounds(t *testing.T) {
	for authors := 0; authors <= 5; authors++ {
		err := Members{Authors: ids(authors), Advisers: ids(1)}.Validate()
		if authors >= 1 && authors <= 4 {
			assert.NoError(t, err, "authors=%d", authors)
		} else {
			assert.Equal(t, BadRequest, kindOf(err), "authors=%d", authors)
		}
	}

	for advisers := 0; advisers <= 3; advisers++ {
		err := Members{Authors: ids(1), Advisers: ids(advisers)}.Validate()
		if advisers >= 1 && advisers <= 2 {
			assert.NoError(t, err, "advisers=%d", advisers)
		} else {
			assert.Equal(t, BadRequest, kindOf(err), "advisers=%d", advisers)
		}
	}

	for panelists := 0; panelists <= 5; panelists++ {
		err := Members{Authors: ids(1), Advisers: ids(1), Panelists: ids(panelists)}.Validate()
		if panelists <= 4 {
			assert.NoError(t, err, "panelists=%d", panelists)
		} else {
			assert.Equal(t, BadRequest, kindOf(err), "panelists=%d", panelists)
		}
	}
}

func TestDuplicateMembers(t *testing.T) {
	shared := uuid.New()
	err := Members{Authors: []uuid.UUID{shared}, Advisers: []uuid.UUID{shared}}.Validate()
	assert.ErrorIs(t, err, ErrDuplicateMember)
}

func TestCheckAccounts(t *testing.T) {
	members := Members{Authors: []uuid.UUID{student.Id}, Advisers: []uuid.UUID{faculty.Id}}
	accounts := map[uuid.UUID]schema.Account{student.Id: student, faculty.Id: faculty}
	assert.NoError(t, members.CheckAccounts(accounts))

	swapped := Members{Authors: []uuid.UUID{faculty.Id}, Advisers: []uuid.UUID{student.Id}}
	assert.Equal(t, BadRequest, kindOf(swapped.CheckAccounts(accounts)))

	missing := Members{Authors: []uuid.UUID{uuid.New()}, Advisers: []uuid.UUID{faculty.Id}}
	assert.Equal(t, BadRequest, kindOf(missing.CheckAccounts(accounts)))
}

func TestRowsKeepOrder(t *testing.T) {
	authors := ids(3)
	members := Members{Authors: authors, Advisers: ids(1), Panelists: []uuid.UUID{}}
	thesisId := uuid.New()

	rows := members.Rows(thesisId)
	require.Len(t, rows, 4)
	for i, author := range authors {
		assert.Equal(t, author, rows[i].AccountId)
		assert.Equal(t, i, rows[i].Position)
		assert.Equal(t, schema.AuthorRole, rows[i].Role)
	}

	thesis := schema.Thesis{Id: thesisId, Members: rows}
	assert.Equal(t, members, MembersOf(&thesis))
}

func TestCheckCreate(t *testing.T) {
	members := Members{Authors: []uuid.UUID{student.Id}, Advisers: []uuid.UUID{faculty.Id}}

	assert.NoError(t, CheckCreate("title", members, student))
	assert.NoError(t, CheckCreate("title", members, faculty))
	assert.NoError(t, CheckCreate("title", members, admin))

	outsider := schema.Account{Id: uuid.New(), Kind: schema.Student}
	assert.ErrorIs(t, CheckCreate("title", members, outsider), ErrNotGroupMember)

	assert.ErrorIs(t, CheckCreate("", members, admin), ErrMissingTitle)
	assert.Equal(t, BadRequest, kindOf(CheckCreate("title", Members{Advisers: []uuid.UUID{faculty.Id}}, admin)))
}
