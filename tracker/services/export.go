package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/export"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/tracker/workflow"
	"thesis_tracker/utils/logging"

	"github.com/prometheus/client_golang/prometheus"
)

const exportFilename = "theses.xlsx"

// Export renders the grading workbook for every thesis still in progress.
func (s *ThesisService) Export(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(exportDurationMetric)
	defer timer.ObserveDuration()

	query := s.db.Model(&schema.Thesis{}).
		Where("inactive = ? AND locked = ? AND status <> ?", false, false, workflow.Final).
		Order("title ASC")

	theses, err := schema.ListTheses(query)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error exporting theses: %v", err), http.StatusInternalServerError)
		return
	}

	workbook, err := export.Workbook(theses, workflow.LastPhase)
	if err != nil {
		slog.Error("error building export workbook", "error", err)
		utils.WriteError(w, "error building export workbook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	if err := export.Write(workbook, w); err != nil {
		slog.Error("error streaming export workbook", "error", err)
		return
	}

	exportMetric.Inc()
	slog.Info("exported theses", "count", len(theses), "code", logging.THESIS_EXPORT)
}
