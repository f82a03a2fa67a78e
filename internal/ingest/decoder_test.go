package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decoderFor(t *testing.T, content string) (*Decoder, error) {
	t.Helper()
	return NewDecoder(io.NopCloser(strings.NewReader(content)), DefaultSampleSize)
}

func TestSniff(t *testing.T) {
	testCases := []struct {
		name   string
		sample string
		atEOF  bool
		want   rune
	}{
		{name: "comma", sample: "sku,name\nA,B\n", atEOF: true, want: ','},
		{name: "semicolon", sample: "a;b;c\n1;2;3\n", atEOF: true, want: ';'},
		{name: "tab", sample: "a\tb\n1\t2\n", atEOF: true, want: '\t'},
		{name: "pipe header only", sample: "a|b|c\n", atEOF: true, want: '|'},
		{name: "tie broken by candidate order", sample: "a,b;c\n1,2;3\n", atEOF: true, want: ','},
		{name: "inconsistent falls back to header frequency", sample: "a;b;c\n1,2;3\n", atEOF: true, want: ';'},
		{name: "higher consistent count wins", sample: "a,b|c|d\n1,2|3|4\n", atEOF: true, want: '|'},
		{name: "quoted delimiters ignored", sample: "\"a,b\";c;d\n1;2;3\n", atEOF: true, want: ';'},
		{name: "truncated last line ignored", sample: "a;b\n1;2\n3;4;5;", atEOF: false, want: ';'},
		{name: "crlf line endings", sample: "a\tb\r\n1\t2\r\n", atEOF: true, want: '\t'},
		{name: "nothing found defaults to comma", sample: "sku\nabc\n", atEOF: true, want: ','},
		{name: "blank sample defaults to comma", sample: "\n\n", atEOF: true, want: ','},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, string(tc.want), string(Sniff([]byte(tc.sample), tc.atEOF)))
		})
	}
}

func TestDecoder_ReadsRecords(t *testing.T) {
	dec, err := decoderFor(t, "sku,name,description\nsku1,Widget,A widget\n\nsku2,Gadget,\n")
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, ',', dec.Delimiter())
	assert.Equal(t, []string{"sku", "name", "description"}, dec.Header())

	rec, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Line)
	assert.Equal(t, []string{"sku1", "Widget", "A widget"}, rec.Values)

	rec, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Line)
	assert.Equal(t, []string{"sku2", "Gadget", ""}, rec.Values)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_SemicolonWithQuotes(t *testing.T) {
	dec, err := decoderFor(t, "sku;name;description\nA1;\"Chair; oak\";\"Solid \"\"oak\"\"\"\n")
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, ';', dec.Delimiter())
	rec, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "Chair; oak", "Solid \"oak\""}, rec.Values)
}

func TestDecoder_StripsBOM(t *testing.T) {
	dec, err := decoderFor(t, "\xEF\xBB\xBFsku,name\nA,B\n")
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, "sku", dec.Header()[0])
}

func TestDecoder_RaggedRows(t *testing.T) {
	dec, err := decoderFor(t, "sku,name,description\nA,B\nC,D,E,F\n")
	require.NoError(t, err)
	defer dec.Close()

	rec, err := dec.Next()
	require.NoError(t, err)
	assert.Len(t, rec.Values, 2)

	rec, err = dec.Next()
	require.NoError(t, err)
	assert.Len(t, rec.Values, 4)
}

func TestDecoder_LargeFileBeyondSample(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku|name\n")
	for i := 0; i < 500; i++ {
		b.WriteString("S|N\n")
	}
	dec, err := decoderFor(t, b.String())
	require.NoError(t, err)
	defer dec.Close()

	count := 0
	for {
		_, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 500, count)
	assert.Equal(t, '|', dec.Delimiter())
}

func TestDecoder_EmptyInput(t *testing.T) {
	for _, content := range []string{"", "\n\n", "\xEF\xBB\xBF"} {
		_, err := decoderFor(t, content)
		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr), "content %q", content)
	}
}

func TestOpenDecoder_MissingFile(t *testing.T) {
	_, err := OpenDecoder(t.Context(), memFiles{}, "nope.csv", DefaultSampleSize)
	var decErr *DecodeError
	assert.True(t, errors.As(err, &decErr))
}
