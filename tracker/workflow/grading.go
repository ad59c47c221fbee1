package workflow

import (
	"thesis_tracker/tracker/schema"
	"time"

	"github.com/google/uuid"
)

type Grade struct {
	Grade   float64
	Remarks string
}

// ApplyGrades writes per-author grades onto the student accounts that are
// authors of the thesis. Ids that match no such account are skipped. It
// returns the accounts that changed; the thesis itself is not modified.
func ApplyGrades(thesis *schema.Thesis, grades map[uuid.UUID]Grade, accounts map[uuid.UUID]schema.Account, actor schema.Account) ([]schema.Account, error) {
	if err := CheckStaffAction(thesis, actor); err != nil {
		return nil, err
	}

	updated := make([]schema.Account, 0, len(grades))
	for _, author := range thesis.Authors() {
		grade, ok := grades[author.AccountId]
		if !ok {
			continue
		}
		account, ok := accounts[author.AccountId]
		if !ok || !account.IsStudent() {
			continue
		}
		value := grade.Grade
		account.Grade = &value
		account.Remarks = grade.Remarks
		updated = append(updated, account)
	}
	return updated, nil
}

// RecordThesisGrade appends a snapshot to the thesis grade history.
func RecordThesisGrade(thesis *schema.Thesis, grade Grade, now time.Time) schema.ThesisGrade {
	entry := schema.ThesisGrade{
		Id:       uuid.New(),
		ThesisId: thesis.Id,
		Date:     now,
		Value:    grade.Grade,
		Remarks:  grade.Remarks,
	}
	thesis.Grades = append([]schema.ThesisGrade{entry}, thesis.Grades...)
	return entry
}
