package report_test

import (
	"bytes"
	"slices"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/xuri/excelize/v2"

	"github.com/mathcode-academy/mathcode/internal/achievement"
	"github.com/mathcode-academy/mathcode/internal/curriculum"
	"github.com/mathcode-academy/mathcode/internal/progress"
	"github.com/mathcode-academy/mathcode/internal/report"
)

func TestWriteProgressXLSX(t *testing.T) {
	catalog, err := curriculum.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}

	last := civil.Date{Year: 2024, Month: time.March, Day: 10}
	p := progress.UserProgress{
		UserID:        "u1",
		XPPoints:      203,
		CurrentStreak: 2,
		LongestStreak: 4,
		CompletedLessons: []string{
			"foundation/number-systems/binary-arithmetic",
			"foundation/number-systems/binary-intro",
		},
		LastActivityDate: &last,
	}

	var buf bytes.Buffer
	err = report.WriteProgressXLSX(&buf, report.Input{
		DisplayName:  "Ada",
		Progress:     p,
		Catalog:      catalog,
		Achievements: achievement.Evaluate(catalog, p),
		GeneratedAt:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("WriteProgressXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	wantSheets := []string{report.SheetSummary, report.SheetLessons, report.SheetAchievements}
	if got := f.GetSheetList(); !slices.Equal(got, wantSheets) {
		t.Errorf("sheets = %v, want %v", got, wantSheets)
	}

	summary := map[string]string{
		"B1":  "Ada",
		"B2":  "203",
		"B3":  "2",
		"B4":  "4",
		"B5":  "2 / 63",
		"B6":  "2024-03-10",
		"A9":  "Track",
		"A10": "Foundation",
		"B10": "2",
		"C10": "9",
	}
	for c, want := range summary {
		got, err := f.GetCellValue(report.SheetSummary, c)
		if err != nil {
			t.Fatalf("GetCellValue(%s) error = %v", c, err)
		}
		if got != want {
			t.Errorf("Summary!%s = %q, want %q", c, got, want)
		}
	}

	rows, err := f.GetRows(report.SheetLessons)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 64 {
		t.Fatalf("lesson rows = %d, want 64", len(rows))
	}
	if rows[1][0] != "foundation/number-systems/binary-intro" || rows[1][5] != "Yes" || rows[1][6] != "2" {
		t.Errorf("first lesson row = %v", rows[1])
	}
	if rows[2][5] != "Yes" || rows[2][6] != "1" {
		t.Errorf("second lesson row = %v", rows[2])
	}
	if rows[3][5] != "No" {
		t.Errorf("third lesson row = %v", rows[3])
	}

	badges, err := f.GetRows(report.SheetAchievements)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(badges) != 10 {
		t.Errorf("achievement rows = %d, want 10", len(badges))
	}
	if badges[1][0] != "First Steps" || badges[1][2] != "Yes" {
		t.Errorf("first badge row = %v", badges[1])
	}
}

func TestWriteProgressXLSX_NilCatalog(t *testing.T) {
	var buf bytes.Buffer
	if err := report.WriteProgressXLSX(&buf, report.Input{}); err == nil {
		t.Error("WriteProgressXLSX() should fail without a catalog")
	}
}
