package workflow

import (
	"thesis_tracker/tracker/schema"

	"github.com/google/uuid"
)

type bounds struct {
	role     string
	min, max int
}

var (
	authorBounds   = bounds{role: schema.AuthorRole, min: 1, max: 4}
	adviserBounds  = bounds{role: schema.AdviserRole, min: 1, max: 2}
	panelistBounds = bounds{role: schema.PanelistRole, min: 0, max: 4}
)

func (b bounds) check(ids []uuid.UUID) error {
	if len(ids) < b.min || len(ids) > b.max {
		if b.min == 0 {
			return ruleErr(BadRequest, "a thesis may have at most %d %ss, got %d", b.max, b.role, len(ids))
		}
		return ruleErr(BadRequest, "a thesis must have between %d and %d %ss, got %d", b.min, b.max, b.role, len(ids))
	}
	return nil
}

type Members struct {
	Authors   []uuid.UUID
	Advisers  []uuid.UUID
	Panelists []uuid.UUID
}

// Validate checks the group size limits and that nobody holds two seats.
func (m Members) Validate() error {
	if err := authorBounds.check(m.Authors); err != nil {
		return err
	}
	if err := adviserBounds.check(m.Advisers); err != nil {
		return err
	}
	if err := panelistBounds.check(m.Panelists); err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{})
	for _, ids := range [][]uuid.UUID{m.Authors, m.Advisers, m.Panelists} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				return ErrDuplicateMember
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

// CheckAccounts verifies every member resolves to an account of a fitting
// kind: authors are students, advisers and panelists are staff.
func (m Members) CheckAccounts(accounts map[uuid.UUID]schema.Account) error {
	for _, id := range m.Authors {
		account, ok := accounts[id]
		if !ok {
			return ruleErr(BadRequest, "author %v does not exist", id)
		}
		if !account.IsStudent() {
			return ruleErr(BadRequest, "author %v is not a student", id)
		}
	}
	for _, ids := range [][]uuid.UUID{m.Advisers, m.Panelists} {
		for _, id := range ids {
			account, ok := accounts[id]
			if !ok {
				return ruleErr(BadRequest, "account %v does not exist", id)
			}
			if account.IsStudent() {
				return ruleErr(BadRequest, "student %v cannot advise or sit on a panel", id)
			}
		}
	}
	return nil
}

func (m Members) All() []uuid.UUID {
	all := make([]uuid.UUID, 0, len(m.Authors)+len(m.Advisers)+len(m.Panelists))
	all = append(all, m.Authors...)
	all = append(all, m.Advisers...)
	all = append(all, m.Panelists...)
	return all
}

// Rows builds the membership rows of a thesis, keeping list order.
func (m Members) Rows(thesisId uuid.UUID) []schema.ThesisMember {
	rows := make([]schema.ThesisMember, 0, len(m.Authors)+len(m.Advisers)+len(m.Panelists))
	add := func(role string, ids []uuid.UUID) {
		for i, id := range ids {
			rows = append(rows, schema.ThesisMember{ThesisId: thesisId, AccountId: id, Role: role, Position: i})
		}
	}
	add(schema.AuthorRole, m.Authors)
	add(schema.AdviserRole, m.Advisers)
	add(schema.PanelistRole, m.Panelists)
	return rows
}

func MembersOf(thesis *schema.Thesis) Members {
	ids := func(members []schema.ThesisMember) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			out = append(out, m.AccountId)
		}
		return out
	}
	return Members{
		Authors:   ids(thesis.Authors()),
		Advisers:  ids(thesis.Advisers()),
		Panelists: ids(thesis.Panelists()),
	}
}

// CheckCreate enforces that a non-administrator only creates theses for a
// group they belong to: students as an author, faculty as an adviser.
func CheckCreate(title string, members Members, actor schema.Account) error {
	if title == "" {
		return ErrMissingTitle
	}
	if err := members.Validate(); err != nil {
		return err
	}

	switch actor.Kind {
	case schema.Administrator:
		return nil
	case schema.Student:
		for _, id := range members.Authors {
			if id == actor.Id {
				return nil
			}
		}
	case schema.Faculty:
		for _, id := range members.Advisers {
			if id == actor.Id {
				return nil
			}
		}
	}
	return ErrNotGroupMember
}
