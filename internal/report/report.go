// Package report exports a learner's progress as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mathcode-academy/mathcode/internal/achievement"
	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/progress"
)

// Sheet names.
const (
	SheetSummary      = "Summary"
	SheetLessons      = "Lessons"
	SheetAchievements = "Achievements"
)

// ContentType is the MIME type of the exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Input is everything the export shows.
type Input struct {
	DisplayName  string
	Progress     progress.UserProgress
	Catalog      *curriculum.Catalog
	Achievements []achievement.Achievement
	GeneratedAt  time.Time
}

// WriteProgressXLSX writes the workbook for in to w.
func WriteProgressXLSX(w io.Writer, in Input) error {
	if in.Catalog == nil {
		return fmt.Errorf("catalog is nil")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummary(f, header, in); err != nil {
		return err
	}
	if err := writeLessons(f, header, in); err != nil {
		return err
	}
	if err := writeAchievements(f, header, in); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, header int, in Input) error {
	p := in.Progress
	done := curriculum.NewLessonSet(p.CompletedLessons...)

	lastActivity := ""
	if p.LastActivityDate != nil {
		lastActivity = p.LastActivityDate.String()
	}
	name := in.DisplayName
	if name == "" {
		name = p.UserID
	}

	rows := [][]any{
		{"Learner", name},
		{"XP", p.XPPoints},
		{"Current streak (days)", p.CurrentStreak},
		{"Longest streak (days)", p.LongestStreak},
		{"Lessons completed", fmt.Sprintf("%d / %d", countKnown(in.Catalog, done), in.Catalog.Len())},
		{"Last activity", lastActivity},
		{"Generated", in.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"Track", "Completed", "Total", "Percent"},
	}
	tableHeader := len(rows)
	for _, tp := range in.Catalog.TrackProgress(done) {
		rows = append(rows, []any{tp.Title, tp.Completed, tp.Total, float64(tp.Percent) / 100})
	}

	if err := setRows(f, SheetSummary, rows); err != nil {
		return err
	}

	pct, err := f.NewStyle(&excelize.Style{NumFmt: 9}) // 0%
	if err != nil {
		return fmt.Errorf("create percent style: %w", err)
	}
	if len(rows) > tableHeader {
		if err := f.SetCellStyle(SheetSummary, cell(4, tableHeader+1), cell(4, len(rows)), pct); err != nil {
			return fmt.Errorf("style percent column: %w", err)
		}
	}
	if err := f.SetCellStyle(SheetSummary, cell(1, tableHeader), cell(4, tableHeader), header); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}
	return f.SetColWidth(SheetSummary, "A", "A", 28)
}

func writeLessons(f *excelize.File, header int, in Input) error {
	if _, err := f.NewSheet(SheetLessons); err != nil {
		return fmt.Errorf("create lessons sheet: %w", err)
	}

	order := make(map[string]int, len(in.Progress.CompletedLessons))
	for i, id := range in.Progress.CompletedLessons {
		order[id] = i + 1
	}

	rows := [][]any{{"Lesson", "Track", "Module", "Title", "Duration", "Completed", "Completion #"}}
	for _, m := range in.Catalog.Metadata() {
		completed, seq := "No", any(nil)
		if n, ok := order[m.ID]; ok {
			completed, seq = "Yes", n
		}
		rows = append(rows, []any{m.ID, m.TrackTitle, m.ModuleID, m.Title, m.Duration, completed, seq})
	}

	if err := setRows(f, SheetLessons, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetLessons, "A1", "G1", header); err != nil {
		return fmt.Errorf("style lessons header: %w", err)
	}
	if err := f.SetColWidth(SheetLessons, "A", "A", 48); err != nil {
		return fmt.Errorf("size lessons columns: %w", err)
	}
	return f.SetColWidth(SheetLessons, "D", "D", 36)
}

func writeAchievements(f *excelize.File, header int, in Input) error {
	if _, err := f.NewSheet(SheetAchievements); err != nil {
		return fmt.Errorf("create achievements sheet: %w", err)
	}

	rows := [][]any{{"Badge", "Description", "Unlocked", "Progress %"}}
	for _, a := range in.Achievements {
		unlocked := "No"
		if a.Unlocked {
			unlocked = "Yes"
		}
		rows = append(rows, []any{a.Title, a.Description, unlocked, a.Progress})
	}

	if err := setRows(f, SheetAchievements, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetAchievements, "A1", "D1", header); err != nil {
		return fmt.Errorf("style achievements header: %w", err)
	}
	return f.SetColWidth(SheetAchievements, "B", "B", 36)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(sheet, cell(1, i+1), &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func countKnown(c *curriculum.Catalog, done curriculum.LessonSet) int {
	n := 0
	for id := range done {
		if c.Contains(id) {
			n++
		}
	}
	return n
}
