package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/tracker/workflow"
	"thesis_tracker/utils/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	approveAction = "approve"
	statusAction  = "status"
	gradeAction   = "grade"
)

type gradeRequest struct {
	Grade   float64 `json:"grade" validate:"gte=0"`
	Remarks string  `json:"remarks"`
}

type statusRequest struct {
	Type    string                     `json:"type" validate:"required,oneof=approve status grade"`
	Status  string                     `json:"status"`
	Grades  map[uuid.UUID]gradeRequest `json:"grades" validate:"dive"`
	Overall *gradeRequest              `json:"overall"`
}

// UpdateStatus handles approval, status changes and grading. Each request runs
// in a single transaction.
func (s *ThesisService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestAccount(w, r)
	if !ok {
		return
	}

	thesisId, err := utils.URLParamUUID(r, "thesis_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params statusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		// Students are rejected before the thesis is looked up.
		if actor.IsStudent() {
			return ruleError(workflow.ErrStudentForbidden)
		}

		thesis, err := loadThesis(txn, thesisId)
		if err != nil {
			return err
		}

		switch params.Type {
		case approveAction:
			return s.approve(txn, &thesis, actor)
		case statusAction:
			return s.setStatus(txn, &thesis, params.Status, actor)
		case gradeAction:
			return s.grade(txn, &thesis, params, actor)
		default:
			return CodedError(fmt.Errorf("unknown status action '%v'", params.Type), http.StatusBadRequest)
		}
	})
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error updating thesis status: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteNoContent(w)
}

func (s *ThesisService) approve(txn *gorm.DB, thesis *schema.Thesis, actor schema.Account) error {
	changed, err := workflow.Approve(thesis, actor)
	if err != nil {
		return ruleError(err)
	}
	if !changed {
		return nil
	}

	if err := saveThesisFields(txn, thesis); err != nil {
		return err
	}
	slog.Info("approved thesis", "thesis_id", thesis.Id, "account_id", actor.Id, "code", logging.THESIS_STATUS)
	return nil
}

func (s *ThesisService) setStatus(txn *gorm.DB, thesis *schema.Thesis, next string, actor schema.Account) error {
	previous := thesis.Status
	if err := workflow.SetStatus(thesis, next, actor); err != nil {
		return ruleError(err)
	}

	if err := saveThesisFields(txn, thesis); err != nil {
		return err
	}

	transitionMetric.WithLabelValues(next).Inc()
	slog.Info("thesis status changed", "thesis_id", thesis.Id, "from", previous, "to", next, "locked", thesis.Locked, "account_id", actor.Id, "code", logging.THESIS_STATUS)
	return nil
}

func (s *ThesisService) grade(txn *gorm.DB, thesis *schema.Thesis, params statusRequest, actor schema.Account) error {
	grades := make(map[uuid.UUID]workflow.Grade, len(params.Grades))
	ids := make([]uuid.UUID, 0, len(params.Grades))
	for id, g := range params.Grades {
		grades[id] = workflow.Grade{Grade: g.Grade, Remarks: g.Remarks}
		ids = append(ids, id)
	}

	accounts, err := schema.GetAccounts(ids, txn)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}

	updated, err := workflow.ApplyGrades(thesis, grades, accounts, actor)
	if err != nil {
		return ruleError(err)
	}

	for _, account := range updated {
		result := txn.Model(&schema.Account{Id: account.Id}).Select("grade", "remarks").Updates(&account)
		if result.Error != nil {
			slog.Error("sql error saving student grade", "account_id", account.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
	}

	if params.Overall != nil {
		entry := workflow.RecordThesisGrade(thesis, workflow.Grade{Grade: params.Overall.Grade, Remarks: params.Overall.Remarks}, s.now().UTC())
		result := txn.Create(&entry)
		if result.Error != nil {
			slog.Error("sql error recording thesis grade", "thesis_id", thesis.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
	}

	slog.Info("graded thesis", "thesis_id", thesis.Id, "students", len(updated), "overall", params.Overall != nil, "account_id", actor.Id, "code", logging.THESIS_GRADE)
	return nil
}
