package trace

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/tebeka/atexit"
)

// CSVWriter stores event-log records in a CSV file with a header row.
type CSVWriter struct {
	path string
	file *os.File
	csv  *csv.Writer

	records    []Record
	bufferSize int
	closed     bool
}

// NewCSVWriter creates the CSV file, overwriting any existing one, and writes
// the header. The file is flushed and closed on atexit.Exit if the caller has
// not closed it by then.
func NewCSVWriter(path string) (*CSVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating csv trace: %w", err)
	}
	w := &CSVWriter{
		path:       path,
		file:       file,
		csv:        csv.NewWriter(file),
		bufferSize: 1000,
	}
	if err := w.csv.Write(columns); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("writing csv header: %w", err)
	}

	atexit.Register(func() {
		_ = w.Close()
	})
	return w, nil
}

// Path returns the file the writer targets.
func (w *CSVWriter) Path() string {
	return w.path
}

// Write buffers a record, flushing when the buffer is full.
func (w *CSVWriter) Write(r Record) error {
	if w.closed {
		return fmt.Errorf("csv trace %s is closed", w.path)
	}
	w.records = append(w.records, r)
	if len(w.records) >= w.bufferSize {
		return w.Flush()
	}
	return nil
}

// Flush writes buffered records to the file.
func (w *CSVWriter) Flush() error {
	for _, r := range w.records {
		row := []string{
			strconv.Itoa(r.Run),
			strconv.FormatInt(r.EntityID, 10),
			r.Pathway,
			string(r.EventType),
			r.Event,
			strconv.FormatFloat(r.Time, 'f', -1, 64),
			strconv.Itoa(r.ResourceID),
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	w.records = nil
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *CSVWriter) Close() error {
	if w.closed {
		return nil
	}
	flushErr := w.Flush()
	w.closed = true
	if err := w.file.Close(); err != nil {
		return err
	}
	return flushErr
}
