package storage

import (
	"path"

	"github.com/google/uuid"
)

func ThesisPath(thesisId uuid.UUID) string {
	return path.Join("theses", thesisId.String())
}

func SubmissionPath(thesisId, submissionId uuid.UUID) string {
	return path.Join(ThesisPath(thesisId), "submissions", submissionId.String())
}

// AttachmentKey names attachments by id so client file names never reach the
// filesystem or bucket.
func AttachmentKey(thesisId, submissionId, attachmentId uuid.UUID) string {
	return path.Join(SubmissionPath(thesisId, submissionId), attachmentId.String())
}
