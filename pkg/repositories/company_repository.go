package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// CompanyRepository defines the interface for company data access.
type CompanyRepository interface {
	List(ctx context.Context) ([]*models.Company, error)
	ListTickers(ctx context.Context) ([]string, error)
	Get(ctx context.Context, ticker string) (*models.Company, error)
	Exists(ctx context.Context, ticker string) (bool, error)
	// MissingDescriptions returns tickers whose description was never fetched.
	MissingDescriptions(ctx context.Context) ([]string, error)
	UpdateDescription(ctx context.Context, ticker, description string) error
	// AdvanceLastUpdated moves last_updated forward to date. It never moves it back.
	AdvanceLastUpdated(ctx context.Context, ticker string, date time.Time) error
}

type companyRepository struct {
	db *database.DB
}

var _ CompanyRepository = (*companyRepository)(nil)

// NewCompanyRepository creates a new company repository.
func NewCompanyRepository(db *database.DB) CompanyRepository {
	return &companyRepository{db: db}
}

const companyColumns = `stock_ticker, company_name, sector_id, description, last_updated`

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	if err := row.Scan(&c.Ticker, &c.Name, &c.SectorID, &c.Description, &c.LastUpdated); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *companyRepository) List(ctx context.Context) ([]*models.Company, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY stock_ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}
	return companies, nil
}

func (r *companyRepository) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `SELECT stock_ticker FROM companies ORDER BY stock_ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickers: %w", err)
	}
	return tickers, nil
}

func (r *companyRepository) Get(ctx context.Context, ticker string) (*models.Company, error) {
	c, err := scanCompany(r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE stock_ticker = $1`, ticker))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

func (r *companyRepository) Exists(ctx context.Context, ticker string) (bool, error) {
	var exists bool
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM companies WHERE stock_ticker = $1)`, ticker).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check company: %w", err)
	}
	return exists, nil
}

func (r *companyRepository) MissingDescriptions(ctx context.Context) ([]string, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT stock_ticker FROM companies WHERE description IS NULL ORDER BY stock_ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies without description: %w", err)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickers: %w", err)
	}
	return tickers, nil
}

func (r *companyRepository) UpdateDescription(ctx context.Context, ticker, description string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE companies SET description = $2 WHERE stock_ticker = $1`, ticker, description)
	if err != nil {
		return fmt.Errorf("failed to update description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *companyRepository) AdvanceLastUpdated(ctx context.Context, ticker string, date time.Time) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE companies SET last_updated = GREATEST(last_updated, $2::date) WHERE stock_ticker = $1`,
		ticker, date)
	if err != nil {
		return fmt.Errorf("failed to advance last_updated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
