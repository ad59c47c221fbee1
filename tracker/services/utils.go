package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/tracker/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	var rerr *workflow.RuleError
	if errors.As(err, &rerr) {
		return ruleStatus(rerr.Kind)
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func ruleStatus(kind workflow.Kind) int {
	switch kind {
	case workflow.BadRequest:
		return http.StatusBadRequest
	case workflow.Forbidden:
		return http.StatusForbidden
	case workflow.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ruleError converts a workflow rule violation into a coded error. Other
// errors are assumed to be storage failures.
func ruleError(err error) error {
	var rerr *workflow.RuleError
	if errors.As(err, &rerr) {
		return CodedError(rerr, ruleStatus(rerr.Kind))
	}
	var cerr *codedError
	if errors.As(err, &cerr) {
		return err
	}
	return CodedError(err, http.StatusInternalServerError)
}

func loadThesis(txn *gorm.DB, thesisId uuid.UUID) (schema.Thesis, error) {
	thesis, err := schema.GetThesis(thesisId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrThesisNotFound) {
			return thesis, CodedError(err, http.StatusNotFound)
		}
		return thesis, CodedError(err, http.StatusInternalServerError)
	}
	return thesis, nil
}

// loadVisibleThesis loads the thesis and applies the per-thesis visibility rule.
func loadVisibleThesis(txn *gorm.DB, thesisId uuid.UUID, actor schema.Account) (schema.Thesis, error) {
	thesis, err := loadThesis(txn, thesisId)
	if err != nil {
		return thesis, err
	}
	if err := workflow.CanViewThesis(&thesis, actor); err != nil {
		return thesis, ruleError(err)
	}
	return thesis, nil
}

// saveThesisFields writes the scalar lifecycle fields of the thesis.
func saveThesisFields(txn *gorm.DB, thesis *schema.Thesis) error {
	result := txn.Model(&schema.Thesis{Id: thesis.Id}).Select(
		"title", "description", "phase", "status", "approved", "locked", "inactive",
	).Updates(thesis)
	if result.Error != nil {
		slog.Error("sql error updating thesis", "thesis_id", thesis.Id, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return nil
}

const maxRequiredFreeSpace = 20 * 1024 * 1024 * 1024

// checkSufficientStorage rejects uploads once free space falls below a fifth
// of the disk, capped at 20GiB. Backends that report no capacity are skipped.
func checkSufficientStorage(store storage.Storage, incoming int64) error {
	usage, err := store.Usage()
	if err != nil {
		return CodedError(errors.New("unable to check available storage"), http.StatusInternalServerError)
	}
	if usage.TotalBytes == 0 {
		return nil
	}

	required := min(usage.TotalBytes/5, maxRequiredFreeSpace)
	if incoming > 0 {
		required += uint64(incoming)
	}
	if usage.FreeBytes < required {
		slog.Error("insufficient storage for upload", "free_bytes", usage.FreeBytes, "required_bytes", required)
		return CodedError(fmt.Errorf("insufficient storage space for upload (%d bytes free)", usage.FreeBytes), http.StatusInsufficientStorage)
	}
	return nil
}
