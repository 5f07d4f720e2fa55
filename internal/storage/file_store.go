package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

type snapshot struct {
	NextBrandID   int64             `json:"nextBrandId"`
	NextPerfumeID int64             `json:"nextPerfumeId"`
	Brands        []*models.Brand   `json:"brands"`
	Perfumes      []*models.Perfume `json:"perfumes"`
}

// FileStore is an ingestion gateway kept in a single JSON file. Every write
// rewrites the file through a temp file and a rename.
type FileStore struct {
	mu       sync.RWMutex
	filename string
	data     snapshot
	now      func() time.Time
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		filename: filename,
		data:     snapshot{NextBrandID: 1, NextPerfumeID: 1},
		now:      time.Now,
	}

	if err := fs.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return fs, nil
}

// FindBySourceURL returns nil when no perfume was crawled from url.
func (fs *FileStore) FindBySourceURL(_ context.Context, url string) (*models.Perfume, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, p := range fs.data.Perfumes {
		if p.SourceURL == url {
			return clonePerfume(p), nil
		}
	}
	return nil, nil
}

func (fs *FileStore) FindByBrandAndTitle(_ context.Context, brandName, title string) (*models.Perfume, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, p := range fs.data.Perfumes {
		if strings.EqualFold(p.BrandName, brandName) && p.Name == title {
			return clonePerfume(p), nil
		}
	}
	return nil, nil
}

func (fs *FileStore) FindOrCreateBrand(_ context.Context, name string) (*models.Brand, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := fs.data
	brand, created, err := findOrCreateBrand(&next, name)
	if err != nil {
		return nil, err
	}
	if created {
		if err := fs.commit(next); err != nil {
			return nil, err
		}
	}
	b := *brand
	return &b, nil
}

// CreateRecord stores a perfume. A known source URL yields ErrDuplicate.
func (fs *FileStore) CreateRecord(_ context.Context, brand *models.Brand, rec *models.Record) (*models.Perfume, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := fs.data
	p, err := fs.insert(&next, brand, rec)
	if err != nil {
		return nil, err
	}
	if err := fs.commit(next); err != nil {
		return nil, err
	}
	return clonePerfume(p), nil
}

// BulkCreateRecords stores all records or none of them.
func (fs *FileStore) BulkCreateRecords(_ context.Context, brandName string, recs []*models.Record) ([]*models.Perfume, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := fs.data
	brand, _, err := findOrCreateBrand(&next, brandName)
	if err != nil {
		return nil, err
	}

	created := make([]*models.Perfume, 0, len(recs))
	for _, rec := range recs {
		p, err := fs.insert(&next, brand, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to bulk create perfumes: %w", err)
		}
		created = append(created, clonePerfume(p))
	}

	if err := fs.commit(next); err != nil {
		return nil, err
	}
	return created, nil
}

func (fs *FileStore) GetPerfume(_ context.Context, id int64) (*models.Perfume, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, p := range fs.data.Perfumes {
		if p.ID == id {
			return clonePerfume(p), nil
		}
	}
	return nil, fmt.Errorf("perfume %d: %w", id, models.ErrNotFound)
}

func (fs *FileStore) ListPerfumes(_ context.Context) ([]*models.Perfume, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	perfumes := make([]*models.Perfume, 0, len(fs.data.Perfumes))
	for _, p := range fs.data.Perfumes {
		perfumes = append(perfumes, clonePerfume(p))
	}
	return perfumes, nil
}

// insert appends to next. The slices of next are copied first so a failed
// batch leaves the committed snapshot untouched.
func (fs *FileStore) insert(next *snapshot, brand *models.Brand, rec *models.Record) (*models.Perfume, error) {
	for _, p := range next.Perfumes {
		if p.SourceURL == rec.SourceURL {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicate, rec.SourceURL)
		}
	}

	p := &models.Perfume{
		ID:        next.NextPerfumeID,
		BrandID:   brand.ID,
		BrandName: brand.Name,
		Name:      rec.Title,
		SourceURL: rec.SourceURL,
		Accords:   rec.Accords,
		Notes:     rec.Notes,
		CreatedAt: fs.now(),
	}
	if p.Accords == nil {
		p.Accords = []models.Accord{}
	}

	next.NextPerfumeID++
	next.Perfumes = append(next.Perfumes[:len(next.Perfumes):len(next.Perfumes)], p)
	return p, nil
}

func findOrCreateBrand(next *snapshot, name string) (*models.Brand, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("brand name is required")
	}

	for _, b := range next.Brands {
		if strings.EqualFold(b.Name, name) {
			return b, false, nil
		}
	}

	b := &models.Brand{ID: next.NextBrandID, Name: name}
	next.NextBrandID++
	next.Brands = append(next.Brands[:len(next.Brands):len(next.Brands)], b)
	return b, true, nil
}

// commit writes next to disk and makes it current. fs.mu must be held.
func (fs *FileStore) commit(next snapshot) error {
	if err := fs.save(next); err != nil {
		return err
	}
	fs.data = next
	return nil
}

func (fs *FileStore) save(s snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(fs.filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmpFile, fs.filename); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode %s: %w", fs.filename, err)
	}
	if s.NextBrandID < 1 {
		s.NextBrandID = 1
	}
	if s.NextPerfumeID < 1 {
		s.NextPerfumeID = 1
	}
	fs.data = s
	return nil
}

func clonePerfume(p *models.Perfume) *models.Perfume {
	c := *p
	c.Accords = append([]models.Accord{}, p.Accords...)
	c.Notes = models.Notes{
		Top:    append([]string{}, p.Notes.Top...),
		Middle: append([]string{}, p.Notes.Middle...),
		Base:   append([]string{}, p.Notes.Base...),
		Flat:   append([]string{}, p.Notes.Flat...),
	}
	return &c
}
