package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/handle"
)

// ExtractRows reads every data row of a spreadsheet as a header-keyed map.
// Cells stay text exactly as written, so identifiers like "0123" survive.
// Workbooks contribute a single sheet, see readXLSX.
func ExtractRows(path string) ([]map[string]any, error) {
	switch Ext(path) {
	case "csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		return readCSV(f)
	case "xlsx":
		return readXLSX(path)
	case "xls":
		return nil, errors.WithHint(
			errors.Wrapf(ErrUnsupported, "legacy .xls workbook %s", path),
			"save the spreadsheet as .xlsx or .csv and upload it again")
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%s", path)
	}
}

func readCSV(r io.Reader) ([]map[string]any, error) {
	br := bufio.NewReader(r)
	// Spreadsheet exports often start with a UTF-8 BOM
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}

	first, _ := br.Peek(4096)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	return tableRows(records), nil
}

// sniffDelimiter picks ';' over ',' when the header line has more of them,
// as Excel does for pt-BR locales.
func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

// readXLSX returns the first sheet whose header has an identifier column.
// Other sheets (notes, legends) are ignored so their rows neither fail the
// job nor shift line numbers.
func readXLSX(path string) ([]map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open workbook %s", path)
	}
	defer f.Close()

	var first [][]string
	for i, sheet := range f.GetSheetList() {
		records, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrapf(err, "read sheet %q", sheet)
		}
		if len(records) > 0 && hasIdentifierHeader(records[0]) {
			return tableRows(records), nil
		}
		if i == 0 {
			first = records
		}
	}
	// No sheet names an identifier column; the first sheet fails the job
	// with the missing-column message.
	return tableRows(first), nil
}

func hasIdentifierHeader(header []string) bool {
	keys := make(map[string]any, len(header))
	for _, h := range header {
		keys[strings.TrimSpace(h)] = ""
	}
	_, ok := handle.Column(keys)
	return ok
}

// tableRows keys each record by the header row, skipping blank rows and
// blank header cells.
func tableRows(records [][]string) []map[string]any {
	if len(records) == 0 {
		return nil
	}
	header := records[0]
	out := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(map[string]any, len(header))
		for i, key := range header {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if i < len(rec) {
				row[key] = rec[i]
			} else {
				row[key] = ""
			}
		}
		out = append(out, row)
	}
	return out
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
