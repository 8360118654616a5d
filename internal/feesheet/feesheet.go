// Package feesheet imports baseline fee schedules from disclosure
// worksheets (an exported Loan Estimate tab). Expected columns:
// section, fee name, amount.
package feesheet

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/normalize"
)

// Options configures the worksheet reader.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip
}

// ReadBaseline reads a fee worksheet and returns its lines in sheet
// order. Blank rows are skipped; a row with a fee name but no section
// or no parseable amount is an error, because a baseline with holes
// cannot anchor a tolerance check.
func ReadBaseline(path string, opts Options) ([]model.FeeLine, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "feesheet: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var lines []model.FeeLine
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		line, ok, err := parseRow(rowToStrings(row))
		if err != nil {
			return nil, eris.Wrapf(err, "feesheet: row %d", i+1)
		}
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, eris.Errorf("feesheet: no fee lines in %s", path)
	}

	zap.L().Info("feesheet: baseline read",
		zap.String("path", path),
		zap.Int("lines", len(lines)))
	return lines, nil
}

// parseRow converts one worksheet row into a fee line. ok is false for
// blank rows.
func parseRow(cells []string) (model.FeeLine, bool, error) {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	section, name, amount := get(0), get(1), get(2)

	if section == "" && name == "" && amount == "" {
		return model.FeeLine{}, false, nil
	}
	if name == "" {
		return model.FeeLine{}, false, eris.New("missing fee name")
	}
	if section == "" {
		return model.FeeLine{}, false, eris.Errorf("missing section for fee %q", name)
	}
	amt, ok := normalize.Amount(amount)
	if !ok {
		return model.FeeLine{}, false, eris.Errorf("unparseable amount %q for fee %q", amount, name)
	}

	return model.FeeLine{
		Name:    name,
		Section: strings.ToUpper(section),
		Amount:  amt,
	}, true, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("feesheet: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("feesheet: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
