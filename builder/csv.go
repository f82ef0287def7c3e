package builder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/poiesic/answerbank/core"
)

// Column names of exported corpus spreadsheets.
const (
	ColumnID       = "id"
	ColumnCode     = "code"
	ColumnCat1     = "cat1"
	ColumnCat2     = "cat2"
	ColumnCat3     = "cat3"
	ColumnTitle    = "title"
	ColumnMainText = "maintext"
	ColumnAgency1  = "agency1"
	ColumnAgency2  = "agency2"
)

var requiredColumns = []string{ColumnCat1, ColumnCat2, ColumnCat3, ColumnTitle, ColumnMainText}

// ReadCSV parses an exported corpus sheet. The header row names the columns;
// columns other than the known ones are kept as row metadata. Fails with
// ErrMissingColumns when a required column is absent.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w: empty input", core.ErrValidation, ErrMissingColumns)
		}
		return nil, err
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name != "" {
			columns[name] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %w: %s", core.ErrValidation, ErrMissingColumns, strings.Join(missing, ", "))
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, rowFromRecord(line, record, columns))
	}
	return rows, nil
}

func rowFromRecord(line int, record []string, columns map[string]int) Row {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := Row{
		Line:     line,
		Code:     field(ColumnCode),
		Path:     [3]string{field(ColumnCat1), field(ColumnCat2), field(ColumnCat3)},
		Question: field(ColumnTitle),
		Answer:   field(ColumnMainText),
	}
	for name := range columns {
		switch name {
		case ColumnCode, ColumnCat1, ColumnCat2, ColumnCat3, ColumnTitle, ColumnMainText:
			continue
		}
		value := field(name)
		if value == "" {
			continue
		}
		if name == ColumnID {
			name = MetaSourceID
		}
		if row.Metadata == nil {
			row.Metadata = make(map[string]string)
		}
		row.Metadata[name] = value
	}
	return row
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes rows in the format ReadCSV accepts. Metadata keys become
// extra columns after the known ones.
func WriteCSV(w io.Writer, rows []Row) error {
	extra := make(map[string]bool)
	for _, row := range rows {
		for k := range row.Metadata {
			switch k {
			case MetaSourceID, MetaAgency1, MetaAgency2:
			default:
				extra[k] = true
			}
		}
	}
	extraColumns := make([]string, 0, len(extra))
	for k := range extra {
		extraColumns = append(extraColumns, k)
	}
	slices.Sort(extraColumns)

	header := []string{ColumnID, ColumnCode, ColumnCat1, ColumnCat2, ColumnCat3, ColumnTitle, ColumnMainText, ColumnAgency1, ColumnAgency2}
	header = append(header, extraColumns...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Metadata[MetaSourceID], row.Code,
			row.Path[0], row.Path[1], row.Path[2],
			row.Question, row.Answer,
			row.Metadata[MetaAgency1], row.Metadata[MetaAgency2],
		}
		for _, k := range extraColumns {
			record = append(record, row.Metadata[k])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
