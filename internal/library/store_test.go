// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/teticio/kindle2pdf/pkg/types"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(types.LibraryConfig{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func testBook(asin string, renderedAt time.Time) types.Book {
	return types.Book{
		ASIN:       asin,
		Title:      "Title " + asin,
		Pages:      42,
		PDFPath:    "/tmp/" + asin + ".pdf",
		RenderedAt: renderedAt,
	}
}

func TestRecordAndList(t *testing.T) {
	s, dir := openTestStore(t)
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(testBook("B000000001", base)))
	require.NoError(t, s.Record(testBook("B000000002", base.Add(time.Hour))))

	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 2)

	// Most recently rendered first.
	assert.Equal(t, "B000000002", books[0].ASIN)
	assert.Equal(t, "B000000001", books[1].ASIN)
	assert.Equal(t, 42, books[0].Pages)
	assert.True(t, books[1].RenderedAt.Equal(base))

	// Each book gets a YAML sidecar record.
	data, err := os.ReadFile(filepath.Join(dir, "books", "B000000001.yaml"))
	require.NoError(t, err)
	var b types.Book
	require.NoError(t, yaml.Unmarshal(data, &b))
	assert.Equal(t, "Title B000000001", b.Title)
}

func TestRecordUpserts(t *testing.T) {
	s, _ := openTestStore(t)
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(testBook("B000000001", base)))

	updated := testBook("B000000001", base.Add(time.Hour))
	updated.Pages = 99
	require.NoError(t, s.Record(updated))

	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 99, books[0].Pages)
}

func TestMarkUploaded(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Record(testBook("B000000001", time.Now())))

	require.NoError(t, s.MarkUploaded("B000000001"))

	books, err := s.List()
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.True(t, books[0].Uploaded)
}

func TestMarkUploadedUnknownBook(t *testing.T) {
	s, _ := openTestStore(t)
	assert.Error(t, s.MarkUploaded("B0NOPE"))
}

func TestListRejectsMalformedTimestamp(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.db.Exec(
		`INSERT INTO books (asin, title, pages, pdf_path, rendered_at, uploaded)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		"B000000001", "Title", 42, "/tmp/b.pdf", "yesterday-ish")
	require.NoError(t, err)

	_, err = s.List()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rendered_at")
}

func TestListEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	books, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestOpenIsReentrant(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(types.LibraryConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Record(testBook("B000000001", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(types.LibraryConfig{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	books, err := s.List()
	require.NoError(t, err)
	assert.Len(t, books, 1)
}
