package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

func record(url, title string) *models.Record {
	notes := models.NewNotes()
	notes.Flat = []string{"Iso E Super"}
	return &models.Record{SourceURL: url, Title: title, Notes: notes}
}

func newStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "perfumes.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)
	return fs, path
}

func TestFileStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	fs, path := newStore(t)

	brand, err := fs.FindOrCreateBrand(ctx, "Escentric Molecules")
	require.NoError(t, err)
	assert.Equal(t, int64(1), brand.ID)

	again, err := fs.FindOrCreateBrand(ctx, "escentric molecules")
	require.NoError(t, err)
	assert.Equal(t, brand.ID, again.ID)

	p, err := fs.CreateRecord(ctx, brand, record("https://example.com/m1.html", "Molecule 01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Escentric Molecules", p.BrandName)

	found, err := fs.FindBySourceURL(ctx, "https://example.com/m1.html")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Molecule 01", found.Name)

	byTitle, err := fs.FindByBrandAndTitle(ctx, "ESCENTRIC MOLECULES", "Molecule 01")
	require.NoError(t, err)
	require.NotNil(t, byTitle)

	missing, err := fs.FindBySourceURL(ctx, "https://example.com/none.html")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreDuplicate(t *testing.T) {
	ctx := context.Background()
	fs, _ := newStore(t)

	brand, err := fs.FindOrCreateBrand(ctx, "Creed")
	require.NoError(t, err)

	_, err = fs.CreateRecord(ctx, brand, record("https://example.com/a.html", "Aventus"))
	require.NoError(t, err)

	_, err = fs.CreateRecord(ctx, brand, record("https://example.com/a.html", "Aventus"))
	assert.ErrorIs(t, err, models.ErrDuplicate)
}

func TestFileStoreBulkIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fs, _ := newStore(t)

	_, err := fs.BulkCreateRecords(ctx, "Creed", []*models.Record{
		record("https://example.com/a.html", "Aventus"),
		record("https://example.com/a.html", "Aventus again"),
	})
	assert.ErrorIs(t, err, models.ErrDuplicate)

	all, err := fs.ListPerfumes(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	created, err := fs.BulkCreateRecords(ctx, "Creed", []*models.Record{
		record("https://example.com/a.html", "Aventus"),
		record("https://example.com/b.html", "Viking"),
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, created[0].BrandID, created[1].BrandID)
	assert.Equal(t, int64(1), created[0].ID)
	assert.Equal(t, int64(2), created[1].ID)
}

func TestFileStoreReload(t *testing.T) {
	ctx := context.Background()
	fs, path := newStore(t)

	_, err := fs.BulkCreateRecords(ctx, "Creed", []*models.Record{record("https://example.com/a.html", "Aventus")})
	require.NoError(t, err)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	p, err := reopened.GetPerfume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Aventus", p.Name)
	assert.Equal(t, []string{"Iso E Super"}, p.Notes.Flat)

	brand, err := reopened.FindOrCreateBrand(ctx, "Le Labo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), brand.ID)

	_, err = reopened.GetPerfume(ctx, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFileStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	fs, _ := newStore(t)

	created, err := fs.BulkCreateRecords(ctx, "Creed", []*models.Record{record("https://example.com/a.html", "Aventus")})
	require.NoError(t, err)

	created[0].Notes.Flat[0] = "changed"

	p, err := fs.GetPerfume(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Iso E Super", p.Notes.Flat[0])
}

func TestNewFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfumes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}
