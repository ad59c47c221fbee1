package services

import (
	"fmt"
	"thesis_tracker/tracker/schema"
	"time"

	"github.com/google/uuid"
)

type accountInfo struct {
	Id    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type authorInfo struct {
	accountInfo
	Grade   *float64 `json:"grade"`
	Remarks string   `json:"remarks"`
}

type gradeInfo struct {
	Date    time.Time `json:"date"`
	Value   float64   `json:"value"`
	Remarks string    `json:"remarks"`
}

type attachmentInfo struct {
	Id           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type,omitempty"`
	Size         int64     `json:"size"`
}

type submissionInfo struct {
	Id          uuid.UUID        `json:"id"`
	Submitter   uuid.UUID        `json:"submitter"`
	Submitted   time.Time        `json:"submitted"`
	Phase       int              `json:"phase"`
	Attachments []attachmentInfo `json:"attachments,omitempty"`
}

type latestSubmission struct {
	Latest *uuid.UUID `json:"latest"`
	When   *time.Time `json:"when"`
}

type thesisSummary struct {
	Id          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Phase       int              `json:"phase"`
	Status      string           `json:"status"`
	Approved    *bool            `json:"approved"`
	Locked      bool             `json:"locked"`
	Authors     []authorInfo     `json:"authors"`
	Advisers    []accountInfo    `json:"advisers"`
	Panelists   []accountInfo    `json:"panelists"`
	Grade       *gradeInfo       `json:"grade"`
	Submission  latestSubmission `json:"submission"`
	Submissions []submissionInfo `json:"submissions,omitempty"`
}

type thesisDetail struct {
	thesisSummary
	Grades    []gradeInfo `json:"grades"`
	CreatedAt time.Time   `json:"created_at"`
}

func convertAccount(account *schema.Account, id uuid.UUID) accountInfo {
	if account == nil {
		return accountInfo{Id: id}
	}
	return accountInfo{Id: account.Id, Name: account.DisplayName(), Email: account.Email}
}

func convertMembers(members []schema.ThesisMember) []accountInfo {
	infos := make([]accountInfo, 0, len(members))
	for _, m := range members {
		infos = append(infos, convertAccount(m.Account, m.AccountId))
	}
	return infos
}

func convertGrade(grade schema.ThesisGrade) gradeInfo {
	return gradeInfo{Date: grade.Date, Value: grade.Value, Remarks: grade.Remarks}
}

func convertSubmission(submission schema.Submission) submissionInfo {
	info := submissionInfo{
		Id:        submission.Id,
		Submitter: submission.SubmitterId,
		Submitted: submission.Submitted,
		Phase:     submission.Phase,
	}
	for _, a := range submission.Attachments {
		info.Attachments = append(info.Attachments, attachmentInfo{
			Id: a.Id, OriginalName: a.OriginalName, MimeType: a.MimeType, Size: a.Size,
		})
	}
	return info
}

// convertThesis builds the listing view. submissions must be ordered newest
// first; the first entry becomes the latest submission.
func convertThesis(thesis schema.Thesis, submissions []schema.Submission, withSubmissions bool) thesisSummary {
	summary := thesisSummary{
		Id:          thesis.Id,
		Title:       thesis.Title,
		Description: thesis.Description,
		Phase:       thesis.Phase,
		Status:      thesis.Status,
		Approved:    thesis.Approved,
		Locked:      thesis.Locked,
		Authors:     make([]authorInfo, 0),
		Advisers:    convertMembers(thesis.Advisers()),
		Panelists:   convertMembers(thesis.Panelists()),
	}

	for _, m := range thesis.Authors() {
		author := authorInfo{accountInfo: convertAccount(m.Account, m.AccountId)}
		if m.Account != nil {
			author.Grade = m.Account.Grade
			author.Remarks = m.Account.Remarks
		}
		summary.Authors = append(summary.Authors, author)
	}

	if latest := thesis.LatestGrade(); latest != nil {
		grade := convertGrade(*latest)
		summary.Grade = &grade
	}

	if len(submissions) > 0 {
		id, when := submissions[0].Id, submissions[0].Submitted
		summary.Submission = latestSubmission{Latest: &id, When: &when}
	}

	if withSubmissions {
		summary.Submissions = make([]submissionInfo, 0, len(submissions))
		for _, s := range submissions {
			summary.Submissions = append(summary.Submissions, convertSubmission(s))
		}
	}

	return summary
}

func convertThesisDetail(thesis schema.Thesis, submissions []schema.Submission, withSubmissions bool) thesisDetail {
	detail := thesisDetail{
		thesisSummary: convertThesis(thesis, submissions, withSubmissions),
		Grades:        make([]gradeInfo, 0, len(thesis.Grades)),
		CreatedAt:     thesis.CreatedAt,
	}
	for _, g := range thesis.Grades {
		detail.Grades = append(detail.Grades, convertGrade(g))
	}
	return detail
}

func thesisLocation(thesisId uuid.UUID) string {
	return fmt.Sprintf("%v/thesis/%v", ApiPrefix, thesisId)
}

func submissionLocation(thesisId, submissionId uuid.UUID) string {
	return fmt.Sprintf("%v/submission/%v", thesisLocation(thesisId), submissionId)
}

func commentLocation(thesisId, commentId uuid.UUID) string {
	return fmt.Sprintf("%v/comment/%v", thesisLocation(thesisId), commentId)
}
