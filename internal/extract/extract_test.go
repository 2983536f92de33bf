package extract_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("missing")
	}

	return data, nil
}

func (m *memoryObjects) Upload(_ context.Context, key string, data []byte) error {
	m.objects[key] = data

	return nil
}

func documentsRoot(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "documents")
	require.NoError(t, os.Mkdir(root, 0o700))

	return root
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// threePagePDF builds a PDF whose second page draws no text.
func threePagePDF(first, third string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 5 0 R 7 0 R] /Count 3 >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 9 0 R >> >> /Contents 4 0 R >>",
		"",
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 9 0 R >> >> /Contents 6 0 R >>",
		"",
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 9 0 R >> >> /Contents 8 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	streams := map[int]string{
		3: fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", first),
		5: "BT /F1 12 Tf ( ) Tj ET",
		7: fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", third),
	}

	var builder strings.Builder

	builder.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))

	for index, object := range objects {
		offsets[index] = builder.Len()
		if content, ok := streams[index]; ok {
			object = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
		}

		fmt.Fprintf(&builder, "%d 0 obj\n%s\nendobj\n", index+1, object)
	}

	xrefOffset := builder.Len()
	fmt.Fprintf(&builder, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)

	for _, offset := range offsets {
		fmt.Fprintf(&builder, "%010d 00000 n \n", offset)
	}

	fmt.Fprintf(&builder, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefOffset)

	return []byte(builder.String())
}

func TestExtract_LocalTextFile(t *testing.T) {
	t.Parallel()

	root := documentsRoot(t)
	path := writeFile(t, root, "notes.txt", []byte("\xef\xbb\xbfPlain notes."))
	extractor := extract.New(nil, extract.WithDocumentsRoot(root))

	text, err := extractor.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Plain notes.", text)

	text, err = extractor.Extract(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Plain notes.", text)
}

func TestExtract_PDFSkipsBlankPagesAndKeepsOrder(t *testing.T) {
	t.Parallel()

	root := documentsRoot(t)
	writeFile(t, root, "book.pdf", threePagePDF("Chapter one begins.", "Chapter two follows."))

	text, err := extract.New(nil, extract.WithDocumentsRoot(root)).Extract(context.Background(), "book.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Chapter one begins.\n\nChapter two follows.", text)
}

func TestExtract_ObjectRef(t *testing.T) {
	t.Parallel()

	objects := &memoryObjects{objects: map[string][]byte{
		"documents/a.txt":   []byte("staged text"),
		"documents/doc.pdf": threePagePDF("Staged page.", "Last page."),
	}}

	text, err := extract.New(objects).Extract(context.Background(), "object://documents/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "staged text", text)

	text, err = extract.New(objects).Extract(context.Background(), "object://documents/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Staged page.\n\nLast page.", text)

	_, err = extract.New(nil).Extract(context.Background(), "object://documents/a.txt")
	require.ErrorIs(t, err, extract.ErrNoObjectStore)
}

func TestExtract_HTTPRef(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write([]byte("remote text"))
	}))
	t.Cleanup(server.Close)

	extractor := extract.New(nil, extract.WithHTTPClient(server.Client()))

	text, err := extractor.Extract(context.Background(), server.URL+"/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "remote text", text)

	_, err = extractor.Extract(context.Background(), server.URL+"/missing")

	var extractionErr *core.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, server.URL+"/missing", extractionErr.Source)
}

func TestExtract_Failures(t *testing.T) {
	t.Parallel()

	root := documentsRoot(t)
	extractor := extract.New(nil, extract.WithDocumentsRoot(root))

	tests := []struct {
		name string
		ref  string
		want error
	}{
		{name: "empty ref", ref: "  ", want: extract.ErrEmptyRef},
		{name: "binary text file", ref: writeFile(t, root, "blob.txt", []byte{0xff, 0xfe, 0x00, 0x81}), want: extract.ErrUnsupportedContent},
		{name: "text posing as pdf", ref: writeFile(t, root, "fake.pdf", []byte("just words")), want: extract.ErrUnsupportedContent},
		{name: "config file", ref: writeFile(t, root, "project.toml", []byte("api_key = \"secret\"")), want: extract.ErrUnsupportedType},
		{name: "no extension", ref: writeFile(t, root, "README", []byte("hello")), want: extract.ErrUnsupportedType},
		{name: "missing file", ref: filepath.Join(root, "nope.txt"), want: os.ErrNotExist},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := extractor.Extract(context.Background(), testCase.ref)

			var extractionErr *core.ExtractionError
			require.ErrorAs(t, err, &extractionErr)
			assert.Equal(t, testCase.ref, extractionErr.Source)
			require.ErrorIs(t, err, testCase.want)
		})
	}
}

func TestExtract_LocalPathsStayInsideDocumentsRoot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "documents")
	require.NoError(t, os.Mkdir(root, 0o700))

	outside := writeFile(t, base, "secret.txt", []byte("do not read"))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link.txt")))

	extractor := extract.New(nil, extract.WithDocumentsRoot(root))

	refs := []string{
		outside,
		"../secret.txt",
		filepath.Join(root, "..", "secret.txt"),
		"link.txt",
		filepath.Join(base, "absent.txt"),
		"/etc/hostname",
	}

	for _, ref := range refs {
		text, err := extractor.Extract(context.Background(), ref)
		require.ErrorIs(t, err, extract.ErrOutsideDocumentsRoot, ref)
		assert.Empty(t, text)
	}

	_, err := extract.New(nil).Extract(context.Background(), outside)
	require.ErrorIs(t, err, extract.ErrLocalFilesDisabled)
}

func TestExtract_RejectsProcessEnvironment(t *testing.T) {
	t.Parallel()

	const environ = "/proc/self/environ"
	if _, err := os.Stat(environ); err != nil {
		t.Skip("no procfs on this platform")
	}

	extractor := extract.New(nil, extract.WithDocumentsRoot(documentsRoot(t)))

	text, err := extractor.Extract(context.Background(), environ)

	var extractionErr *core.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	require.ErrorIs(t, err, extract.ErrOutsideDocumentsRoot)
	assert.Empty(t, text)
}

func TestExtract_MalformedPDF(t *testing.T) {
	t.Parallel()

	root := documentsRoot(t)
	path := writeFile(t, root, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))

	_, err := extract.New(nil, extract.WithDocumentsRoot(root)).Extract(context.Background(), path)

	var extractionErr *core.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
}

func TestExtractAll_JoinsInOrderAndFailsFast(t *testing.T) {
	t.Parallel()

	root := documentsRoot(t)
	first := writeFile(t, root, "a.txt", []byte("first"))
	second := writeFile(t, root, "b.md", []byte("second"))
	extractor := extract.New(nil, extract.WithDocumentsRoot(root))

	text, err := extractor.ExtractAll(context.Background(), []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", text)

	missing := filepath.Join(root, "missing.txt")

	_, err = extractor.ExtractAll(context.Background(), []string{first, missing, second})

	var extractionErr *core.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, missing, extractionErr.Source)
}
