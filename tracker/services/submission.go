package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/tracker/workflow"
	"thesis_tracker/utils/logging"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	uploadFormField     = "files"
	maxUploadMemory     = 32 << 20
	submissionRateLimit = 24 * time.Hour
)

var errNoAttachments = errors.New("submission produced no attachments")

// submissionQuota caps accepted uploads per account over a rolling day.
// Rejected attempts never count against it. A nil quota is unlimited.
type submissionQuota struct {
	limit   int
	limiter *httprate.RateLimiter
}

func newSubmissionQuota(limit int) *submissionQuota {
	if limit <= 0 {
		return nil
	}
	return &submissionQuota{limit: limit, limiter: httprate.NewRateLimiter(limit, submissionRateLimit)}
}

func (q *submissionQuota) exhausted(accountId uuid.UUID) (bool, error) {
	if q == nil {
		return false, nil
	}
	_, rate, err := q.limiter.Status(accountId.String())
	if err != nil {
		return false, err
	}
	return int(math.Round(rate)) >= q.limit, nil
}

// consume records an accepted upload and sets the X-RateLimit headers.
func (q *submissionQuota) consume(w http.ResponseWriter, r *http.Request, accountId uuid.UUID) {
	if q == nil {
		return
	}
	q.limiter.OnLimit(w, r, accountId.String())
}

// admit loads the thesis and runs the admission checks against the current
// deadline. A missing thesis is passed to the checks as nil.
func (s *ThesisService) admit(txn *gorm.DB, thesisId uuid.UUID, actor schema.Account, now time.Time) (*schema.Thesis, error) {
	var thesis *schema.Thesis
	loaded, err := schema.GetThesis(thesisId, txn)
	if err == nil {
		thesis = &loaded
	} else if !errors.Is(err, schema.ErrThesisNotFound) {
		return nil, CodedError(err, http.StatusInternalServerError)
	}

	deadlineFor := func(phase int) (*schema.SubmissionDate, error) {
		return schema.GetDeadline(phase, txn)
	}

	if err := workflow.Admit(thesis, actor, now, deadlineFor); err != nil {
		return nil, ruleError(err)
	}
	return thesis, nil
}

func (s *ThesisService) storeFiles(ctx context.Context, thesisId, submissionId uuid.UUID, files []*multipart.FileHeader) ([]schema.Attachment, error) {
	attachments := make([]schema.Attachment, 0, len(files))

	for i, header := range files {
		attachment := schema.Attachment{
			Id:           uuid.New(),
			SubmissionId: submissionId,
			OriginalName: header.Filename,
			MimeType:     header.Header.Get("Content-Type"),
			Size:         header.Size,
			Position:     i,
		}
		attachment.StorageKey = storage.AttachmentKey(thesisId, submissionId, attachment.Id)

		file, err := header.Open()
		if err != nil {
			s.removeFiles(attachments)
			slog.Error("error opening uploaded file", "filename", header.Filename, "error", err)
			return nil, CodedError(fmt.Errorf("error reading uploaded file %v", header.Filename), http.StatusBadRequest)
		}

		err = s.storage.Write(ctx, attachment.StorageKey, file)
		file.Close()
		if err != nil {
			s.removeFiles(attachments)
			return nil, CodedError(fmt.Errorf("error saving uploaded file %v", header.Filename), http.StatusInternalServerError)
		}

		attachments = append(attachments, attachment)
	}

	return attachments, nil
}

// removeFiles is best effort; rows are never written for files it removes.
func (s *ThesisService) removeFiles(attachments []schema.Attachment) {
	for _, a := range attachments {
		if err := s.storage.Delete(context.Background(), a.StorageKey); err != nil {
			slog.Error("error cleaning up attachment", "key", a.StorageKey, "error", err, "code", logging.SUBMISSION_STORE)
		}
	}
}

func (s *ThesisService) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Reject before reading the upload, then check again inside the
	// transaction that records it.
	if _, err := s.admit(s.db, thesisId, actor, s.now()); err != nil {
		submissionMetric.WithLabelValues("rejected").Inc()
		slog.Info("submission rejected", "thesis_id", thesisId, "account_id", actor.Id, "reason", err, "code", logging.SUBMISSION_ADMIT)
		utils.WriteError(w, fmt.Sprintf("submission rejected: %v", err), GetResponseCode(err))
		return
	}

	exhausted, err := s.quota.exhausted(actor.Id)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error checking submission quota: %v", err), http.StatusInternalServerError)
		return
	}
	if exhausted {
		submissionMetric.WithLabelValues("rate_limited").Inc()
		utils.WriteError(w, fmt.Sprintf("at most %d submissions are allowed per day", s.quota.limit), http.StatusTooManyRequests)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		utils.WriteError(w, fmt.Sprintf("error parsing multipart form: %v", err), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Error("error removing temporary upload files", "error", err)
		}
	}()

	files := r.MultipartForm.File[uploadFormField]

	var incoming int64
	for _, f := range files {
		incoming += f.Size
	}
	if err := checkSufficientStorage(s.storage, incoming); err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	submission := schema.Submission{
		Id:          uuid.New(),
		ThesisId:    thesisId,
		SubmitterId: actor.Id,
	}

	attachments, err := s.storeFiles(r.Context(), thesisId, submission.Id, files)
	if err != nil {
		submissionMetric.WithLabelValues("failed").Inc()
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		now := s.now()
		thesis, err := s.admit(txn, thesisId, actor, now)
		if err != nil {
			return err
		}

		if len(attachments) == 0 {
			slog.Error("submission has no attachments", "thesis_id", thesisId, "account_id", actor.Id, "code", logging.SUBMISSION_STORE)
			return CodedError(errNoAttachments, http.StatusInternalServerError)
		}

		submission.Phase = thesis.Phase
		submission.Submitted = now.UTC()
		submission.Attachments = attachments

		result := txn.Omit("Thesis", "Submitter").Create(&submission)
		if result.Error != nil {
			slog.Error("sql error creating submission", "thesis_id", thesisId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		workflow.Submitted(thesis)
		return saveThesisFields(txn, thesis)
	})
	if err != nil {
		s.removeFiles(attachments)
		submissionMetric.WithLabelValues("rejected").Inc()
		utils.WriteError(w, fmt.Sprintf("submission rejected: %v", err), GetResponseCode(err))
		return
	}

	s.quota.consume(w, r, actor.Id)
	submissionMetric.WithLabelValues("accepted").Inc()
	slog.Info("recorded submission", "thesis_id", thesisId, "submission_id", submission.Id, "account_id", actor.Id, "phase", submission.Phase, "files", len(attachments), "code", logging.SUBMISSION_STORE)

	res := convertSubmission(submission)
	res.Attachments = nil
	utils.WriteCreated(w, submissionLocation(thesisId, submission.Id), res)
}

func (s *ThesisService) LatestSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := loadVisibleThesis(s.db, thesisId, actor); err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	submission, err := schema.GetLatestSubmission(thesisId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			utils.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertSubmission(submission))
}

func (s *ThesisService) GetSubmission(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := loadVisibleThesis(s.db, thesisId, actor); err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	submission, err := schema.GetSubmission(thesisId, submissionId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			utils.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertSubmission(submission))
}

// GetAttachment streams the payload only after the thesis, submission and
// attachment ids have been checked to belong together.
func (s *ThesisService) GetAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	attachmentId, err := utils.URLParamUUID(r, "attachment_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := loadVisibleThesis(s.db, thesisId, actor); err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	if _, err := schema.GetSubmission(thesisId, submissionId, s.db); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			code = http.StatusNotFound
		}
		utils.WriteError(w, err.Error(), code)
		return
	}

	attachment, err := schema.GetAttachment(submissionId, attachmentId, s.db)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, schema.ErrAttachmentNotFound) {
			code = http.StatusNotFound
		}
		utils.WriteError(w, err.Error(), code)
		return
	}

	payload, err := s.storage.Read(r.Context(), attachment.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			utils.WriteError(w, "attachment payload is missing", http.StatusNotFound)
			return
		}
		utils.WriteError(w, "error reading attachment", http.StatusInternalServerError)
		return
	}
	defer payload.Close()

	contentType := attachment.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.OriginalName}))
	if attachment.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	}

	if _, err := io.Copy(w, payload); err != nil {
		slog.Error("error streaming attachment", "attachment_id", attachment.Id, "error", err)
	}
}
