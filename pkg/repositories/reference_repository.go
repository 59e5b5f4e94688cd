package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// ReferenceRepository writes static reference data: sectors and companies.
type ReferenceRepository interface {
	// UpsertSectors ensures every name exists and returns name -> id.
	UpsertSectors(ctx context.Context, names []string) (map[string]int, error)
	// UpsertCompanies inserts companies or refreshes their name and sector.
	// Descriptions and last_updated are left untouched.
	UpsertCompanies(ctx context.Context, companies []*models.Company) error
}

type referenceRepository struct {
	db *database.DB
}

var _ ReferenceRepository = (*referenceRepository)(nil)

// NewReferenceRepository creates a new reference data repository.
func NewReferenceRepository(db *database.DB) ReferenceRepository {
	return &referenceRepository{db: db}
}

func (r *referenceRepository) UpsertSectors(ctx context.Context, names []string) (map[string]int, error) {
	q := r.db.Querier(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO sectors (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING`, names); err != nil {
		return nil, fmt.Errorf("failed to insert sectors: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT id, name FROM sectors WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load sectors: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int, len(names))
	for rows.Next() {
		var s models.Sector
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		ids[s.Name] = s.ID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sectors: %w", err)
	}
	return ids, nil
}

func (r *referenceRepository) UpsertCompanies(ctx context.Context, companies []*models.Company) error {
	if len(companies) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(`
			INSERT INTO companies (stock_ticker, company_name, sector_id)
			VALUES (@ticker, @name, @sector_id)
			ON CONFLICT (stock_ticker) DO UPDATE
			SET company_name = EXCLUDED.company_name,
			    sector_id = EXCLUDED.sector_id`,
			pgx.NamedArgs{"ticker": c.Ticker, "name": c.Name, "sector_id": c.SectorID})
	}

	if err := r.db.Querier(ctx).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert companies: %w", err)
	}
	return nil
}
