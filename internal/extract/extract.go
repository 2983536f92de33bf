// Package extract turns document references into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/ledongthuc/pdf"
)

const (
	pageSeparator      = "\n\n"
	defaultHTTPTimeout = 60 * time.Second
	maxDocumentBytes   = 64 << 20
)

const pdfExtension = ".pdf"

var pdfMagic = []byte("%PDF")

// textExtensions are the plain-text documents accepted from the documents directory.
var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// Static errors.
var (
	ErrEmptyRef             = errors.New("document reference is empty")
	ErrUnsupportedContent   = errors.New("unsupported document content")
	ErrUnsupportedType      = errors.New("unsupported document type")
	ErrDocumentTooLarge     = errors.New("document exceeds size limit")
	ErrNoObjectStore        = errors.New("object references require a document store")
	ErrLocalFilesDisabled   = errors.New("local documents are disabled: no documents directory configured")
	ErrOutsideDocumentsRoot = errors.New("document is outside the documents directory")
)

// Extractor resolves a reference to bytes and extracts text from PDF or plain-text content.
// Local paths are only read from inside the documents directory.
type Extractor struct {
	objects       core.ObjectStore
	httpClient    *http.Client
	documentsRoot string
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the client used for http(s) references.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithDocumentsRoot allows local references below dir. Relative references resolve against it.
func WithDocumentsRoot(dir string) Option {
	return func(e *Extractor) {
		e.documentsRoot = strings.TrimSpace(dir)
	}
}

// New creates an Extractor. objects may be nil when object:// references are not used.
func New(objects core.ObjectStore, opts ...Option) *Extractor {
	extractor := &Extractor{
		objects:       objects,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		documentsRoot: "",
	}
	for _, opt := range opts {
		opt(extractor)
	}

	return extractor
}

// Extract returns the text of the document at ref. Every failure is an *core.ExtractionError
// naming ref.
func (e *Extractor) Extract(ctx context.Context, ref string) (string, error) {
	text, err := e.extract(ctx, ref)
	if err != nil {
		return "", &core.ExtractionError{Source: ref, Err: err}
	}

	return text, nil
}

// ExtractAll extracts every ref in order and joins the texts with a blank line.
// The first failing ref aborts the whole call.
func (e *Extractor) ExtractAll(ctx context.Context, refs []string) (string, error) {
	texts := make([]string, 0, len(refs))

	for _, ref := range refs {
		text, err := e.Extract(ctx, ref)
		if err != nil {
			return "", err
		}

		texts = append(texts, text)
	}

	return strings.Join(texts, pageSeparator), nil
}

func (e *Extractor) extract(ctx context.Context, ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", ErrEmptyRef
	}

	if key, ok := objectstore.ParseRef(trimmed); ok {
		if e.objects == nil {
			return "", ErrNoObjectStore
		}

		data, err := e.objects.Download(ctx, key)
		if err != nil {
			return "", err
		}

		return decode(data)
	}

	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		data, err := e.fetch(ctx, trimmed)
		if err != nil {
			return "", err
		}

		return decode(data)
	}

	return e.extractLocal(trimmed)
}

// extractLocal reads a PDF or plain-text file that resolves, after symlinks, to a path inside
// the documents directory. The extension decides how the content is read.
func (e *Extractor) extractLocal(ref string) (string, error) {
	path, err := e.resolveLocal(ref)
	if err != nil {
		return "", err
	}

	extension := strings.ToLower(filepath.Ext(path))
	if extension != pdfExtension && !textExtensions[extension] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, extension)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: not a regular file", ErrUnsupportedType)
	}

	if info.Size() > maxDocumentBytes {
		return "", ErrDocumentTooLarge
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	if extension == pdfExtension {
		if !isPDF(data) {
			return "", fmt.Errorf("%w: file is not a pdf", ErrUnsupportedContent)
		}

		return pdfText(data)
	}

	return plainText(data)
}

// resolveLocal checks ref against the documents directory twice: as written, so paths outside
// it are refused before touching the filesystem, and after symlink evaluation.
func (e *Extractor) resolveLocal(ref string) (string, error) {
	if e.documentsRoot == "" {
		return "", ErrLocalFilesDisabled
	}

	root, err := filepath.Abs(e.documentsRoot)
	if err != nil {
		return "", fmt.Errorf("resolve documents directory: %w", err)
	}

	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve documents directory: %w", err)
	}

	candidate := filepath.Clean(ref)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(resolvedRoot, candidate)
	}

	if !within(root, candidate) && !within(resolvedRoot, candidate) {
		return "", ErrOutsideDocumentsRoot
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if !within(resolvedRoot, resolved) {
		return "", ErrOutsideDocumentsRoot
	}

	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	if len(data) > maxDocumentBytes {
		return nil, ErrDocumentTooLarge
	}

	return data, nil
}

// decode reads fetched or staged content: PDF by its header, otherwise UTF-8 text.
func decode(data []byte) (string, error) {
	if isPDF(data) {
		return pdfText(data)
	}

	return plainText(data)
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic)
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrUnsupportedContent
	}

	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

// pdfText returns the plain text of every page that has any, joined with a blank line.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text = ""
			err = fmt.Errorf("malformed pdf: %v", recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())

	for index := 1; index <= reader.NumPage(); index++ {
		page := reader.Page(index)
		if page.V.IsNull() {
			continue
		}

		content, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			return "", fmt.Errorf("page %d: %w", index, pageErr)
		}

		if strings.TrimSpace(content) == "" {
			continue
		}

		pages = append(pages, content)
	}

	return strings.Join(pages, pageSeparator), nil
}
