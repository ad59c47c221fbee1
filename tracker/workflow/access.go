package workflow

import (
	"strings"
	"thesis_tracker/tracker/schema"

	"github.com/google/uuid"
)

const (
	ShowApproved = ""
	ShowPending  = "show"
	ShowAll      = "all"
)

// ListScope is the visibility filter for a thesis listing.
type ListScope struct {
	// MemberId restricts the list to theses the account belongs to, unless nil.
	MemberId *uuid.UUID
	// Pending selects the approval filter: ShowApproved, ShowPending or ShowAll.
	Pending string
}

// Truthy reads a query flag. A flag given without a value counts as set.
func Truthy(value string) bool {
	switch strings.ToLower(value) {
	case "", "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Scope computes the visibility of a listing. Members see only their own
// theses; administrators see everything unless they pass all=false, and any
// account may widen the listing with a truthy all.
func Scope(actor schema.Account, all string, allPresent bool, showPending string) (ListScope, error) {
	scope := ListScope{}

	skipMembership := (!allPresent && actor.IsAdmin()) || (allPresent && Truthy(all))
	if !skipMembership {
		id := actor.Id
		scope.MemberId = &id
	}

	switch showPending {
	case ShowApproved, ShowPending, ShowAll:
		scope.Pending = showPending
	default:
		return ListScope{}, ruleErr(BadRequest, "invalid showPending value '%v', expected 'show' or 'all'", showPending)
	}

	return scope, nil
}

// Visible reports whether the thesis passes the scope filter.
func (s ListScope) Visible(thesis *schema.Thesis) bool {
	if thesis.Inactive {
		return false
	}
	if s.MemberId != nil && !thesis.HasMember(*s.MemberId) {
		return false
	}
	switch s.Pending {
	case ShowPending:
		return !thesis.IsApproved()
	case ShowAll:
		return true
	default:
		return thesis.IsApproved()
	}
}

// CanViewComments lets staff read every thread and students only their own.
func CanViewComments(thesis *schema.Thesis, actor schema.Account) error {
	if actor.IsStudent() && !thesis.HasMember(actor.Id, schema.AuthorRole) {
		return ErrCommentNotVisible
	}
	return nil
}

// CanViewThesis applies the listing membership rule to a single thesis:
// students only see theses they author.
func CanViewThesis(thesis *schema.Thesis, actor schema.Account) error {
	if actor.IsStudent() && !thesis.HasMember(actor.Id) {
		return ruleErr(Forbidden, "thesis %v is not visible to this account", thesis.Id)
	}
	return nil
}
