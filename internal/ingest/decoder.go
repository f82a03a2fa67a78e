package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultSampleSize is the number of leading bytes used for delimiter sniffing
// and row estimation.
const DefaultSampleSize = 1024

// Delimiters are the sniffing candidates in tie-break order.
var Delimiters = []rune{',', '\t', ';', '|'}

// FileSource is the read side of the uploaded-file store.
type FileSource interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context, key string) (int64, error)
}

// Record is one decoded source row keyed by the header.
type Record struct {
	Line   int
	Header []string
	Values []string
}

// Decoder streams header-keyed records from a delimited file in a single pass.
type Decoder struct {
	closer    io.Closer
	reader    *csv.Reader
	header    []string
	delimiter rune
}

// OpenDecoder opens key from src and prepares a Decoder over it.
func OpenDecoder(ctx context.Context, src FileSource, key string, sampleSize int) (*Decoder, error) {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return nil, &DecodeError{Reason: "cannot open " + key, Err: err}
	}
	dec, err := NewDecoder(rc, sampleSize)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return dec, nil
}

// NewDecoder sniffs the delimiter from the first sampleSize bytes of rc and
// reads the header row. The Decoder takes ownership of rc.
func NewDecoder(rc io.ReadCloser, sampleSize int) (*Decoder, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	// Strips a UTF-8 BOM and transcodes UTF-16 input that carries one.
	decoded := transform.NewReader(rc, unicode.BOMOverride(transform.Nop))
	br := bufio.NewReaderSize(decoded, max(sampleSize, 4096))

	sample, err := br.Peek(sampleSize)
	atEOF := false
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		atEOF = true
	default:
		return nil, &DecodeError{Reason: "cannot read sample", Err: err}
	}
	if len(bytes.TrimSpace(sample)) == 0 {
		return nil, &DecodeError{Reason: "file is empty"}
	}

	delimiter := Sniff(sample, atEOF)

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DecodeError{Reason: "file is empty"}
		}
		return nil, &DecodeError{Reason: "cannot read header", Err: err}
	}

	return &Decoder{
		closer:    rc,
		reader:    reader,
		header:    header,
		delimiter: delimiter,
	}, nil
}

// Header returns the raw header row.
func (d *Decoder) Header() []string { return d.header }

// Delimiter returns the sniffed field delimiter.
func (d *Decoder) Delimiter() rune { return d.delimiter }

// Next returns the next record, io.EOF at the end of the stream, or a
// *RowInvalidError for a row that cannot be parsed. Decoding may continue
// after a RowInvalidError.
func (d *Decoder) Next() (Record, error) {
	values, err := d.reader.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Record{}, &RowInvalidError{Line: parseErr.StartLine, Reason: parseErr.Err.Error()}
		}
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read row: %w", err)
	}
	line, _ := d.reader.FieldPos(0)
	return Record{Line: line, Header: d.header, Values: values}, nil
}

// Close releases the underlying stream.
func (d *Decoder) Close() error {
	return d.closer.Close()
}

// Sniff picks the delimiter for sample. A candidate is consistent when it
// appears the same non-zero number of times on every complete line; the
// consistent candidate with the highest count wins. Otherwise the candidate
// most frequent on the first line wins, and comma when none appears.
// When atEOF is false the trailing partial line is ignored.
func Sniff(sample []byte, atEOF bool) rune {
	lines := sampleLines(sample, atEOF)
	if len(lines) == 0 {
		return ','
	}

	best, bestCount := rune(0), 0
	for _, candidate := range Delimiters {
		count := countUnquoted(lines[0], candidate)
		if count == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if countUnquoted(line, candidate) != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best, bestCount = candidate, count
		}
	}
	if best != 0 {
		return best
	}

	for _, candidate := range Delimiters {
		if count := countUnquoted(lines[0], candidate); count > bestCount {
			best, bestCount = candidate, count
		}
	}
	if best != 0 {
		return best
	}
	return ','
}

// sampleLines splits sample into non-blank lines without line terminators.
func sampleLines(sample []byte, atEOF bool) [][]byte {
	parts := bytes.Split(sample, []byte{'\n'})
	if !atEOF && len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	lines := make([][]byte, 0, len(parts))
	for _, part := range parts {
		part = bytes.TrimRight(part, "\r")
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		lines = append(lines, part)
	}
	return lines
}

// countUnquoted counts delim outside double-quoted sections of line.
func countUnquoted(line []byte, delim rune) int {
	count := 0
	quoted := false
	for _, r := range string(line) {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			count++
		}
	}
	return count
}
