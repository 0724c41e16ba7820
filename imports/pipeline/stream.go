package pipeline

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
)

// newReader configures csv parsing to match what uploaders actually send:
// ragged rows are tolerated, short rows read as empty fields.
func newReader(f *os.File) *csv.Reader {
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r
}

// CountRows reads the whole file once, returning the header and the number
// of data rows. The pre-scan exists so the row-limit check can fail before
// any output is written.
func CountRows(path string) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	reader := newReader(f)
	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	count := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		count++
	}
	return headers, count, nil
}

// StreamRows re-reads the file and hands each data row to fn with its
// 1-based row number. Rows are keyed by header; short rows yield empty
// strings for the missing columns.
func StreamRows(path string, headers []string, fn func(rowNumber int, row RawRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := newReader(f)
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	rowNumber := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		rowNumber++
		row := make(RawRow, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		if err := fn(rowNumber, row); err != nil {
			return err
		}
	}
}
