// Package spreadsheet reads class rosters from and writes gradebooks to .xlsx workbooks.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned when a workbook has no worksheet to read.
var ErrNoSheets = errors.New("workbook does not contain any sheets")

// RosterRow is one non-empty e-mail cell from a roster sheet. Row is 1-based as
// shown by spreadsheet applications.
type RosterRow struct {
	Row   int
	Email string
}

// ReadRoster returns the e-mail addresses in column A of the first sheet. The
// first row is treated as a header and blank cells are ignored.
func ReadRoster(r io.Reader) ([]RosterRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	roster := make([]RosterRow, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		email := strings.TrimSpace(row[0])
		if email == "" {
			continue
		}
		roster = append(roster, RosterRow{Row: i + 1, Email: email})
	}
	return roster, nil
}

// GradebookRow is a single student line of an exported gradebook. Nil scores are
// written as empty cells.
type GradebookRow struct {
	StudentName  string
	StudentEmail string
	Prelim       *float64
	Midterm      *float64
	Final        *float64
	FinalGrade   *float64
	Remarks      string
}

// Gradebook is the content of an exported grade sheet.
type Gradebook struct {
	Title string
	Rows  []GradebookRow
}

var gradebookHeader = []interface{}{"Student", "Email", "Prelim", "Midterm", "Final", "Final Grade", "Remarks"}

// WriteGradebook renders the gradebook as a single-sheet workbook.
func WriteGradebook(w io.Writer, book Gradebook) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := sheetName(book.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &gradebookHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range book.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			row.StudentName,
			row.StudentEmail,
			cellValue(row.Prelim),
			cellValue(row.Midterm),
			cellValue(row.Final),
			cellValue(row.FinalGrade),
			row.Remarks,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "B", 28); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cellValue(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// sheetName trims a title to Excel's 31 character limit and strips characters
// that are not allowed in sheet names.
func sheetName(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if cleaned == "" {
		cleaned = "Gradebook"
	}
	runes := []rune(cleaned)
	if len(runes) > 31 {
		cleaned = string(runes[:31])
	}
	return cleaned
}
