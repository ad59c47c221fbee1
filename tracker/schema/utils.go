package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrThesisNotFound     = errors.New("thesis not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrCommentNotFound    = errors.New("comment not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetAccount(accountId uuid.UUID, db *gorm.DB) (Account, error) {
	var account Account

	result := db.First(&account, "id = ?", accountId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return account, ErrAccountNotFound
		}
		slog.Error("sql error in get account", "account_id", accountId, "error", result.Error)
		return account, ErrDbAccessFailed
	}

	return account, nil
}

func GetAccounts(accountIds []uuid.UUID, db *gorm.DB) (map[uuid.UUID]Account, error) {
	accounts := make(map[uuid.UUID]Account, len(accountIds))
	if len(accountIds) == 0 {
		return accounts, nil
	}

	var found []Account
	result := db.Where("id IN ?", accountIds).Find(&found)
	if result.Error != nil {
		slog.Error("sql error listing accounts", "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	for _, account := range found {
		accounts[account.Id] = account
	}
	return accounts, nil
}

func preloadThesis(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Members.Account").
		Preload("Grades", func(db *gorm.DB) *gorm.DB { return db.Order("date DESC") })
}

// GetThesis loads a thesis with its members and grade history. Inactive
// theses are reported as missing.
func GetThesis(thesisId uuid.UUID, db *gorm.DB) (Thesis, error) {
	var thesis Thesis

	result := preloadThesis(db).First(&thesis, "id = ? AND inactive = ?", thesisId, false)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return thesis, ErrThesisNotFound
		}
		slog.Error("sql error in get thesis", "thesis_id", thesisId, "error", result.Error)
		return thesis, ErrDbAccessFailed
	}

	return thesis, nil
}

// ListTheses runs the given query and loads members and grades for each row.
func ListTheses(query *gorm.DB) ([]Thesis, error) {
	var theses []Thesis

	result := preloadThesis(query).Find(&theses)
	if result.Error != nil {
		slog.Error("sql error listing theses", "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	return theses, nil
}

// GetSubmission loads a submission only if it belongs to the given thesis.
func GetSubmission(thesisId, submissionId uuid.UUID, db *gorm.DB) (Submission, error) {
	var submission Submission

	result := db.
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Submitter").
		First(&submission, "id = ? AND thesis_id = ?", submissionId, thesisId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return submission, ErrSubmissionNotFound
		}
		slog.Error("sql error in get submission", "thesis_id", thesisId, "submission_id", submissionId, "error", result.Error)
		return submission, ErrDbAccessFailed
	}

	return submission, nil
}

// GetLatestSubmission orders by submission time, then id, so equal timestamps
// still resolve to the same row.
func GetLatestSubmission(thesisId uuid.UUID, db *gorm.DB) (Submission, error) {
	var submission Submission

	result := db.
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Submitter").
		Where("thesis_id = ?", thesisId).
		Order("submitted DESC").Order("id DESC").
		First(&submission)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return submission, ErrSubmissionNotFound
		}
		slog.Error("sql error in get latest submission", "thesis_id", thesisId, "error", result.Error)
		return submission, ErrDbAccessFailed
	}

	return submission, nil
}

func ListSubmissions(thesisIds []uuid.UUID, db *gorm.DB) ([]Submission, error) {
	var submissions []Submission
	if len(thesisIds) == 0 {
		return submissions, nil
	}

	result := db.
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("thesis_id IN ?", thesisIds).
		Order("submitted DESC").Order("id DESC").
		Find(&submissions)
	if result.Error != nil {
		slog.Error("sql error listing submissions", "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	return submissions, nil
}

func GetAttachment(submissionId, attachmentId uuid.UUID, db *gorm.DB) (Attachment, error) {
	var attachment Attachment

	result := db.First(&attachment, "id = ? AND submission_id = ?", attachmentId, submissionId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return attachment, ErrAttachmentNotFound
		}
		slog.Error("sql error in get attachment", "attachment_id", attachmentId, "error", result.Error)
		return attachment, ErrDbAccessFailed
	}

	return attachment, nil
}

// GetDeadline returns the effective deadline for a phase, which is the
// record with the highest subphase.
func GetDeadline(phase int, db *gorm.DB) (*SubmissionDate, error) {
	var deadline SubmissionDate

	result := db.Where("phase = ?", phase).Order("subphase DESC").Limit(1).Find(&deadline)
	if result.Error != nil {
		slog.Error("sql error in get deadline", "phase", phase, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return &deadline, nil
}

func GetComment(thesisId, commentId uuid.UUID, db *gorm.DB) (Comment, error) {
	var comment Comment

	result := db.First(&comment, "id = ? AND thesis_id = ?", commentId, thesisId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return comment, ErrCommentNotFound
		}
		slog.Error("sql error in get comment", "comment_id", commentId, "error", result.Error)
		return comment, ErrDbAccessFailed
	}

	return comment, nil
}
