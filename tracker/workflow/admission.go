package workflow

import (
	"thesis_tracker/tracker/schema"
	"time"
)

// DeadlineLookup returns the effective deadline of a phase, or nil if none
// has been set.
type DeadlineLookup func(phase int) (*schema.SubmissionDate, error)

// Admit decides whether actor may add a submission to thesis at time now.
// The checks run in a fixed order and the first failure is returned, so the
// deadline is only looked up once the actor is known to be an author of an
// unlocked thesis. A nil thesis means it does not exist.
func Admit(thesis *schema.Thesis, actor schema.Account, now time.Time, deadlineFor DeadlineLookup) error {
	if !actor.IsStudent() {
		return ErrNotAStudent
	}
	if thesis == nil {
		return ErrThesisNotFound
	}
	if thesis.Locked {
		return ErrThesisLocked
	}
	if !thesis.HasMember(actor.Id, schema.AuthorRole) {
		return ErrNotAnAuthor
	}

	deadline, err := deadlineFor(thesis.Phase)
	if err != nil {
		return err
	}
	if deadline == nil {
		return ErrNoDeadline
	}
	if !now.Before(deadline.Date) {
		return ErrDeadlinePassed
	}
	return nil
}

// Submitted applies the side effect of an accepted submission.
func Submitted(thesis *schema.Thesis) {
	thesis.Status = ForChecking
}
