package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/tracker/workflow"
	"thesis_tracker/utils/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetDeadlines answers phase -> dates, each list ordered by subphase.
func (s *ThesisService) GetDeadlines(w http.ResponseWriter, r *http.Request) {
	var records []schema.SubmissionDate
	result := s.db.Order("phase ASC").Order("subphase ASC").Find(&records)
	if result.Error != nil {
		slog.Error("sql error listing deadlines", "error", result.Error)
		utils.WriteError(w, fmt.Sprintf("error listing deadlines: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	res := make(map[string][]string)
	for phase, dates := range workflow.GroupDeadlines(records) {
		formatted := make([]string, 0, len(dates))
		for _, d := range dates {
			formatted = append(formatted, workflow.FormatDeadline(d))
		}
		res[strconv.Itoa(phase)] = formatted
	}

	utils.WriteJsonResponse(w, res)
}

// SetDeadlines upserts subphase 0 of every phase in the body. Either every
// entry is written or none is.
func (s *ThesisService) SetDeadlines(w http.ResponseWriter, r *http.Request) {
	var params map[string]string
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	deadlines, err := workflow.ParseDeadlines(params)
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	phases := make([]int, 0, len(deadlines))
	for phase := range deadlines {
		phases = append(phases, phase)
	}
	slices.Sort(phases)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		for _, phase := range phases {
			record := schema.SubmissionDate{Id: uuid.New(), Phase: phase, Subphase: 0, Date: deadlines[phase]}
			result := txn.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "phase"}, {Name: "subphase"}},
				DoUpdates: clause.AssignmentColumns([]string{"date"}),
			}).Create(&record)
			if result.Error != nil {
				slog.Error("sql error upserting deadline", "phase", phase, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error setting deadlines: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("updated submission deadlines", "phases", len(deadlines), "code", logging.DEADLINE_UPDATE)

	utils.WriteNoContent(w)
}
