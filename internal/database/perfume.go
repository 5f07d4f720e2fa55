package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

const perfumeColumns = `p.id, p.brand_id, b.name, p.name, p.source_url, p.accords, p.notes, p.created_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PerfumeStore is the postgres ingestion gateway.
type PerfumeStore struct {
	db     *DB
	logger *slog.Logger
}

func NewPerfumeStore(db *DB, logger *slog.Logger) *PerfumeStore {
	return &PerfumeStore{
		db:     db,
		logger: logger.With("component", "gateway"),
	}
}

// FindBySourceURL returns nil when no perfume was crawled from url.
func (s *PerfumeStore) FindBySourceURL(ctx context.Context, url string) (*models.Perfume, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+perfumeColumns+`
		FROM perfumes p
		JOIN brands b ON b.id = p.brand_id
		WHERE p.source_url = $1`, url)

	p, err := scanPerfume(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find perfume by url: %w", err)
	}
	return p, nil
}

// FindByBrandAndTitle returns nil when the brand has no perfume with title.
func (s *PerfumeStore) FindByBrandAndTitle(ctx context.Context, brandName, title string) (*models.Perfume, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+perfumeColumns+`
		FROM perfumes p
		JOIN brands b ON b.id = p.brand_id
		WHERE LOWER(b.name) = LOWER($1) AND p.name = $2
		LIMIT 1`, brandName, title)

	p, err := scanPerfume(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find perfume by brand and title: %w", err)
	}
	return p, nil
}

func (s *PerfumeStore) FindOrCreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	return findOrCreateBrand(ctx, s.db.pool, name)
}

// CreateRecord inserts a perfume for brand. A source URL that already
// exists yields ErrDuplicate.
func (s *PerfumeStore) CreateRecord(ctx context.Context, brand *models.Brand, rec *models.Record) (*models.Perfume, error) {
	p, err := insertPerfume(ctx, s.db.pool, brand, rec)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("perfume created", "perfume_id", p.ID, "url", p.SourceURL)
	return p, nil
}

// BulkCreateRecords resolves the brand and inserts every record in one
// transaction. Nothing is written when any insert fails.
func (s *PerfumeStore) BulkCreateRecords(ctx context.Context, brandName string, recs []*models.Record) ([]*models.Perfume, error) {
	var created []*models.Perfume

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		brand, err := findOrCreateBrand(ctx, tx, brandName)
		if err != nil {
			return err
		}

		created = make([]*models.Perfume, 0, len(recs))
		for _, rec := range recs {
			p, err := insertPerfume(ctx, tx, brand, rec)
			if err != nil {
				return err
			}
			created = append(created, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bulk create perfumes: %w", err)
	}

	s.logger.Info("bulk insert committed", "brand", brandName, "count", len(created))
	return created, nil
}

func (s *PerfumeStore) GetPerfume(ctx context.Context, id int64) (*models.Perfume, error) {
	row := s.db.pool.QueryRow(ctx, `
		SELECT `+perfumeColumns+`
		FROM perfumes p
		JOIN brands b ON b.id = p.brand_id
		WHERE p.id = $1`, id)

	p, err := scanPerfume(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("perfume %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get perfume: %w", err)
	}
	return p, nil
}

func (s *PerfumeStore) ListPerfumes(ctx context.Context) ([]*models.Perfume, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+perfumeColumns+`
		FROM perfumes p
		JOIN brands b ON b.id = p.brand_id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list perfumes: %w", err)
	}
	defer rows.Close()

	var perfumes []*models.Perfume
	for rows.Next() {
		p, err := scanPerfume(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan perfume: %w", err)
		}
		perfumes = append(perfumes, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return perfumes, nil
}

func findOrCreateBrand(ctx context.Context, q querier, name string) (*models.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("brand name is required")
	}

	brand, err := findBrand(ctx, q, name)
	if err == nil {
		return brand, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to find brand: %w", err)
	}

	// DO NOTHING keeps an enclosing transaction usable when another writer
	// created the brand first; no row comes back and the select picks it up.
	brand = &models.Brand{Name: name}
	err = q.QueryRow(ctx, `
		INSERT INTO brands (name) VALUES ($1)
		ON CONFLICT ((LOWER(name))) DO NOTHING
		RETURNING id`, name).Scan(&brand.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		brand, err = findBrand(ctx, q, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create brand: %w", err)
	}
	return brand, nil
}

func findBrand(ctx context.Context, q querier, name string) (*models.Brand, error) {
	brand := &models.Brand{}
	err := q.QueryRow(ctx, `SELECT id, name FROM brands WHERE LOWER(name) = LOWER($1)`, name).
		Scan(&brand.ID, &brand.Name)
	if err != nil {
		return nil, err
	}
	return brand, nil
}

func insertPerfume(ctx context.Context, q querier, brand *models.Brand, rec *models.Record) (*models.Perfume, error) {
	accords, err := json.Marshal(nonNilAccords(rec.Accords))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal accords: %w", err)
	}
	notes, err := json.Marshal(rec.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notes: %w", err)
	}

	scrapedAt := rec.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now()
	}

	p := &models.Perfume{
		BrandID:   brand.ID,
		BrandName: brand.Name,
		Name:      rec.Title,
		SourceURL: rec.SourceURL,
		Accords:   rec.Accords,
		Notes:     rec.Notes,
	}

	err = q.QueryRow(ctx, `
		INSERT INTO perfumes (brand_id, name, source_url, accords, notes, note_layout, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		brand.ID, rec.Title, rec.SourceURL, accords, notes, rec.NoteLayout, scrapedAt,
	).Scan(&p.ID, &p.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, rec.SourceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert perfume: %w", err)
	}

	return p, nil
}

func scanPerfume(row rowScanner) (*models.Perfume, error) {
	var (
		p       models.Perfume
		accords []byte
		notes   []byte
	)
	if err := row.Scan(&p.ID, &p.BrandID, &p.BrandName, &p.Name, &p.SourceURL, &accords, &notes, &p.CreatedAt); err != nil {
		return nil, err
	}

	p.Accords = []models.Accord{}
	if len(accords) > 0 {
		if err := json.Unmarshal(accords, &p.Accords); err != nil {
			return nil, fmt.Errorf("failed to decode accords: %w", err)
		}
	}
	p.Notes = models.NewNotes()
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &p.Notes); err != nil {
			return nil, fmt.Errorf("failed to decode notes: %w", err)
		}
	}
	return &p, nil
}

func nonNilAccords(a []models.Accord) []models.Accord {
	if a == nil {
		return []models.Accord{}
	}
	return a
}
