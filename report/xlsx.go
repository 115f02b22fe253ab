package report

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/teranos/pegabatch/errors"
)

// Sheet is the worksheet name of result spreadsheets.
const Sheet = "Resultados"

// OutputName derives the artifact name from an input file:
// 42_lista.csv becomes 42_lista_results.xlsx.
func OutputName(input string) string {
	base := filepath.Base(input)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base + "_results.xlsx"
}

// WriteXLSX writes rows under a header line to a new workbook at path.
func WriteXLSX(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		return errors.Wrap(err, "name result sheet")
	}

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(Sheet, cell, h); err != nil {
			return errors.Wrapf(err, "write header %s", h)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(Sheet, cell, v); err != nil {
				return errors.Wrapf(err, "write cell %s", cell)
			}
		}
	}

	last, _ := excelize.ColumnNumberToName(len(Columns))
	_ = f.SetColWidth(Sheet, "A", "B", 28)
	_ = f.SetColWidth(Sheet, "C", last, 16)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save workbook %s", path)
	}
	return nil
}

// Archive zips the file at path next to it and returns the zip's path.
func Archive(path string) (string, error) {
	dst := strings.TrimSuffix(path, filepath.Ext(path)) + ".zip"

	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", dst)
	}
	zw := zip.NewWriter(out)
	w, err := zw.Create(filepath.Base(path))
	if err == nil {
		_, err = io.Copy(w, src)
	}
	if err == nil {
		err = zw.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", errors.Wrapf(err, "archive %s", path)
	}
	return dst, nil
}
