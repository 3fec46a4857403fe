// Package source yields scan records in a fixed order through a pull-based
// iterator. Sources never materialize the whole stream: the mapmaking
// pipeline asks for one record at a time and a source may be backed by a
// file, a network stream or a synthetic generator.
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"skymapper/internal/models"
)

// Source is a pull-based scan record stream. Next returns records in arrival
// order and io.EOF once the stream is exhausted. Records returned by Next
// are owned by the caller.
type Source interface {
	Next() (*models.ScanRecord, error)
}

// FileSource reads scan records from a JSON-lines file: one JSON-encoded
// ScanRecord per line, in time order. Blank lines are ignored.
type FileSource struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenFile opens a JSON-lines scan record file for sequential reading.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening records file: %w", err)
	}

	scanner := bufio.NewScanner(f)
	// Records carry full timestreams, so lines can be far longer than the
	// scanner default.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	return &FileSource{path: path, file: f, scanner: scanner}, nil
}

// Next decodes the next record from the file, returning io.EOF at the end.
func (s *FileSource) Next() (*models.ScanRecord, error) {
	for s.scanner.Scan() {
		s.line++
		data := s.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec models.ScanRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: error decoding scan record: %w", s.path, s.line, err)
		}
		return &rec, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading records file: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}

// SliceSource yields records from an in-memory slice, in order. It exists
// for tests and for replaying small pre-built record sets; unbounded streams
// should use a streaming source instead.
type SliceSource struct {
	records []*models.ScanRecord
	next    int
}

// FromRecords builds a SliceSource over the given records.
func FromRecords(records []*models.ScanRecord) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record or io.EOF.
func (s *SliceSource) Next() (*models.ScanRecord, error) {
	if s.next >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.next]
	s.next++
	return rec, nil
}

// WriteFile writes records to a JSON-lines file, one record per line, in the
// order given. The output can be read back with OpenFile.
func WriteFile(path string, src Source) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("error creating records file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	count := 0
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		if err := enc.Encode(rec); err != nil {
			return count, fmt.Errorf("error encoding scan record %d: %w", rec.ID, err)
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return count, fmt.Errorf("error flushing records file: %w", err)
	}
	return count, nil
}
