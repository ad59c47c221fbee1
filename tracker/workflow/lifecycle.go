package workflow

import (
	"slices"
	"thesis_tracker/tracker/schema"
)

const (
	New         = "new"
	ForChecking = "for_checking"
	Checked     = "checked"
	Endorsed    = "endorsed"
	Redefense   = "redefense"
	Pass        = "pass"
	Fail        = "fail"
	Final       = "final"
)

const (
	FirstPhase = 1
	LastPhase  = 3
)

var transitions = map[string][]string{
	New:         {ForChecking, Endorsed},
	ForChecking: {ForChecking, Checked, Endorsed},
	Checked:     {ForChecking, Endorsed},
	Endorsed:    {Pass, Fail, Redefense},
	Redefense:   {Endorsed},
	Pass:        {New, ForChecking, Final},
	Fail:        {New, ForChecking},
	Final:       {},
}

func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

func ValidPhase(phase int) bool {
	return phase >= FirstPhase && phase <= LastPhase
}

// CheckStaffAction is the common guard of every lifecycle mutation.
func CheckStaffAction(thesis *schema.Thesis, actor schema.Account) error {
	if actor.IsStudent() {
		return ErrStudentForbidden
	}
	if thesis == nil {
		return ErrThesisNotFound
	}
	if thesis.Locked {
		return ErrThesisLocked
	}
	return nil
}

// SetStatus moves the thesis to next if the transition table allows it.
// Reaching final locks the thesis.
func SetStatus(thesis *schema.Thesis, next string, actor schema.Account) error {
	if err := CheckStaffAction(thesis, actor); err != nil {
		return err
	}
	if next == "" {
		return ErrEmptyStatus
	}
	if !ValidStatus(next) {
		return ruleErr(BadRequest, "invalid status '%v'", next)
	}
	if !CanTransition(thesis.Status, next) {
		return ruleErr(BadRequest, "cannot change status from '%v' to '%v'", thesis.Status, next)
	}

	thesis.Status = next
	if next == Final {
		thesis.Locked = true
	}
	return nil
}

// Approve reports whether the thesis changed. Non-administrators leave the
// thesis untouched without an error.
func Approve(thesis *schema.Thesis, actor schema.Account) (bool, error) {
	if err := CheckStaffAction(thesis, actor); err != nil {
		return false, err
	}
	if !actor.IsAdmin() {
		return false, nil
	}
	if thesis.Approved != nil && *thesis.Approved {
		return false, nil
	}
	approved := true
	thesis.Approved = &approved
	return true, nil
}

// CheckEditable guards field updates. A locked thesis is frozen for every
// role, administrators included.
func CheckEditable(thesis *schema.Thesis, actor schema.Account) error {
	if actor.IsStudent() {
		return ErrStudentForbidden
	}
	if thesis == nil {
		return ErrThesisNotFound
	}
	if thesis.Locked {
		return ErrThesisLocked
	}
	return nil
}

type Patch struct {
	Title       *string
	Description *string
	Status      *string
	Phase       *int
}

// ApplyPatch validates and applies the scalar part of an update. Nothing is
// written to the thesis unless every field is valid.
func ApplyPatch(thesis *schema.Thesis, patch Patch, actor schema.Account) error {
	if err := CheckEditable(thesis, actor); err != nil {
		return err
	}

	if patch.Title != nil && *patch.Title == "" {
		return ErrMissingTitle
	}
	if patch.Phase != nil && !ValidPhase(*patch.Phase) {
		return ruleErr(BadRequest, "phase must be between %d and %d", FirstPhase, LastPhase)
	}

	status := thesis.Status
	if patch.Status != nil && *patch.Status != thesis.Status {
		next := *patch.Status
		if !ValidStatus(next) {
			return ruleErr(BadRequest, "invalid status '%v'", next)
		}
		if !CanTransition(thesis.Status, next) {
			return ruleErr(BadRequest, "cannot change status from '%v' to '%v'", thesis.Status, next)
		}
		status = next
	}

	if patch.Title != nil {
		thesis.Title = *patch.Title
	}
	if patch.Description != nil {
		thesis.Description = *patch.Description
	}
	if patch.Phase != nil {
		thesis.Phase = *patch.Phase
	}
	thesis.Status = status
	if status == Final {
		thesis.Locked = true
	}
	return nil
}

type DeleteOutcome int

const (
	Deactivated DeleteOutcome = iota
	Locked
)

// Delete never removes a record: unapproved theses are hidden, approved ones
// are locked so their grades stay on file.
func Delete(thesis *schema.Thesis, actor schema.Account) (DeleteOutcome, error) {
	if !actor.IsAdmin() {
		return 0, ErrAdminOnly
	}
	if thesis == nil {
		return 0, ErrThesisNotFound
	}

	if !thesis.IsApproved() {
		thesis.Inactive = true
		return Deactivated, nil
	}
	thesis.Locked = true
	return Locked, nil
}
