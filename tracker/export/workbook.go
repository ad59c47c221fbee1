package export

import (
	"fmt"
	"io"
	"log/slog"
	"thesis_tracker/tracker/schema"

	"github.com/xuri/excelize/v2"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	GroupsSheet = "Thesis Groups"

	maxMembers   = 4
	maxPanelists = 4
)

// PhaseSheet names the grading sheet of a phase.
func PhaseSheet(phase int) string {
	return fmt.Sprintf("THSST%d", phase)
}

var (
	phaseHeader = []interface{}{"Name", "Group", "Grade"}

	groupBanners = []struct {
		cell, from, to, title string
	}{
		{"A1", "A1", "C1", "Thesis Information"},
		{"D1", "D1", "H1", "Member Information"},
		{"I1", "I1", "M1", "Adviser / Panel Information"},
	}

	groupHeader = []interface{}{
		"Group ID", "Title", "Thesis Stage",
		"Member 1", "Member 2", "Member 3", "Member 4", "Total Count",
		"Thesis Adviser", "Panel Member 1", "Panel Member 2", "Panel Member 3", "Panel Member 4",
	}
)

func names(members []schema.ThesisMember) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m.Account != nil {
			out = append(out, m.Account.DisplayName())
		}
	}
	return out
}

func padded(values []string, n int) []interface{} {
	row := make([]interface{}, n)
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

// Workbook builds the grading workbook from theses that are already filtered
// and ordered. Members must have their accounts loaded.
func Workbook(theses []schema.Thesis, lastPhase int) (_ *excelize.File, err error) {
	f := excelize.NewFile()
	defer func() {
		if err != nil {
			if cerr := closeWorkbook(f); cerr != nil {
				slog.Error("error closing discarded workbook", "error", cerr)
			}
		}
	}()

	first := PhaseSheet(1)
	if err := f.SetSheetName(f.GetSheetName(0), first); err != nil {
		return nil, fmt.Errorf("error naming sheet %v: %w", first, err)
	}
	for phase := 2; phase <= lastPhase; phase++ {
		if _, err := f.NewSheet(PhaseSheet(phase)); err != nil {
			return nil, fmt.Errorf("error adding sheet %v: %w", PhaseSheet(phase), err)
		}
	}
	if _, err := f.NewSheet(GroupsSheet); err != nil {
		return nil, fmt.Errorf("error adding sheet %v: %w", GroupsSheet, err)
	}

	if err := writePhaseSheets(f, theses, lastPhase); err != nil {
		return nil, err
	}
	if err := writeGroupsSheet(f, theses); err != nil {
		return nil, err
	}

	return f, nil
}

func writePhaseSheets(f *excelize.File, theses []schema.Thesis, lastPhase int) error {
	rows := make(map[int]int, lastPhase)
	for phase := 1; phase <= lastPhase; phase++ {
		if err := f.SetSheetRow(PhaseSheet(phase), "A1", &phaseHeader); err != nil {
			return fmt.Errorf("error writing header of %v: %w", PhaseSheet(phase), err)
		}
		rows[phase] = 2
	}

	for _, thesis := range theses {
		next, ok := rows[thesis.Phase]
		if !ok {
			return fmt.Errorf("thesis %v is in phase %d, workbook only has phases 1-%d", thesis.Id, thesis.Phase, lastPhase)
		}
		for _, name := range names(thesis.Authors()) {
			cell, _ := excelize.CoordinatesToCellName(1, next)
			row := []interface{}{name, "", "0.0"}
			if err := f.SetSheetRow(PhaseSheet(thesis.Phase), cell, &row); err != nil {
				return fmt.Errorf("error writing row of %v: %w", PhaseSheet(thesis.Phase), err)
			}
			next++
		}
		rows[thesis.Phase] = next
	}
	return nil
}

func writeGroupsSheet(f *excelize.File, theses []schema.Thesis) error {
	for _, b := range groupBanners {
		if err := f.SetCellValue(GroupsSheet, b.cell, b.title); err != nil {
			return fmt.Errorf("error writing banner %v: %w", b.title, err)
		}
		if err := f.MergeCell(GroupsSheet, b.from, b.to); err != nil {
			return fmt.Errorf("error merging %v:%v: %w", b.from, b.to, err)
		}
	}

	if err := f.SetSheetRow(GroupsSheet, "A2", &groupHeader); err != nil {
		return fmt.Errorf("error writing group header: %w", err)
	}

	for i, thesis := range theses {
		authors := names(thesis.Authors())

		adviser := ""
		if advisers := names(thesis.Advisers()); len(advisers) > 0 {
			adviser = advisers[0]
		}

		row := []interface{}{thesis.Id.String(), thesis.Title, thesis.Phase}
		row = append(row, padded(authors, maxMembers)...)
		row = append(row, len(authors), adviser)
		row = append(row, padded(names(thesis.Panelists()), maxPanelists)...)

		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(GroupsSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing group row for thesis %v: %w", thesis.Id, err)
		}
	}
	return nil
}

var closeWorkbook = (*excelize.File).Close

// Write renders the workbook into w and closes it.
func Write(f *excelize.File, w io.Writer) error {
	defer func() {
		if err := closeWorkbook(f); err != nil {
			slog.Error("error closing workbook", "error", err)
		}
	}()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
