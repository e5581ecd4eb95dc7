package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"jordanella.com/tapfarm/internal/games"
)

// Table is one game's rows
type Table struct {
	Game games.Game
	Rows []Row
}

// Workbook renders all tables into one XLSX workbook, one sheet per game in
// the given order. Known amounts are written as numbers.
func (b *Builder) Workbook(tables []Table) ([]byte, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("workbook needs at least one table")
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, table := range tables {
		sheet := string(table.Game)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", sheet, err)
		}

		if err := writeTable(f, sheet, table, headerStyle); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, table Table, headerStyle int) error {
	headers := Headers(table.Game)
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header %s: %w", cell, err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	metrics := table.Game.Metrics()
	for r, row := range table.Rows {
		values := []interface{}{row.Number, row.Account, row.User}
		for _, metric := range metrics {
			if v, known := row.Metrics[metric].Value(); known {
				values = append(values, v)
			} else {
				values = append(values, games.NoneText)
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}
	return nil
}
