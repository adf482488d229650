package rawsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// CSVSource reads raw records from a CSV stream. The first row is the header.
type CSVSource struct {
	name   string
	reader *csv.Reader
	closer io.Closer
	header []string
}

// OpenCSVFile opens a CSV file as a raw source. The file handle is owned by
// the returned source and released by Close.
func OpenCSVFile(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw file %s: %w", path, err)
	}

	src, err := NewCSVSource(path, f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewCSVSource wraps an io.Reader as a raw source. closer may be nil for
// in-memory streams.
func NewCSVSource(name string, r io.Reader, closer io.Closer) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}

	return &CSVSource{
		name:   name,
		reader: cr,
		closer: closer,
		header: header,
	}, nil
}

// Compile-time interface check.
var _ Source = (*CSVSource)(nil)

// Name identifies the source for error context.
func (s *CSVSource) Name() string { return s.name }

// Header returns the column names from the first CSV row.
func (s *CSVSource) Header() []string { return s.header }

// Next returns the next row, or io.EOF when the stream is exhausted.
func (s *CSVSource) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read row from %s: %w", s.name, err)
	}
	return Row(record), nil
}

// Close releases the underlying stream.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
