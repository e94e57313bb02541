package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"leadintake/pkg/errors"
)

// Row is one data row keyed by header. Line is its 1-based line in the
// file, counting the header.
type Row struct {
	Line   int
	Values map[string]string
}

type Sheet struct {
	Headers []string
	Rows    []Row
}

// Parse reads a CSV upload. Short and long rows are tolerated, cells are
// trimmed and blank rows skipped. More than maxRows data rows is a
// validation error.
func Parse(r io.Reader, maxRows int) (*Sheet, error) {
	src, err := decode(r)
	if err != nil {
		return nil, errors.ErrValidation.WithMessage("CSV upload could not be read").WithCause(err)
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.ErrValidation.WithMessage("CSV file is empty")
	}
	if err != nil {
		return nil, errors.ErrValidation.WithMessage("CSV parsing failed").WithCause(err)
	}

	sheet := &Sheet{Headers: make([]string, len(header))}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		sheet.Headers[i] = strings.TrimSpace(h)
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ErrValidation.WithMessage("CSV parsing failed").WithCause(err)
		}
		line, _ := cr.FieldPos(0)

		values := make(map[string]string, len(sheet.Headers))
		blank := true
		for i, h := range sheet.Headers {
			if h == "" || i >= len(record) {
				continue
			}
			v := strings.TrimSpace(record[i])
			if v != "" {
				blank = false
			}
			values[h] = v
		}
		if blank {
			continue
		}

		if maxRows > 0 && len(sheet.Rows) >= maxRows {
			return nil, errors.ErrValidation.
				WithMessage(fmt.Sprintf("CSV has more than %d rows", maxRows)).
				WithDetail("max_rows", maxRows)
		}
		sheet.Rows = append(sheet.Rows, Row{Line: line, Values: values})
	}

	if len(sheet.Rows) == 0 {
		return nil, errors.ErrValidation.WithMessage("CSV file is empty")
	}
	return sheet, nil
}

// Uploads that are not valid UTF-8 are decoded as Windows-1252.
func decode(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(data) {
		return bytes.NewReader(data), nil
	}
	return transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()), nil
}

// Sample is the detector view of the sheet.
func (s *Sheet) Sample(filename string) Sample {
	sample := Sample{Headers: s.Headers, Filename: filename}
	if len(s.Rows) > 0 {
		sample.Row = s.Rows[0].Values
	}
	return sample
}
