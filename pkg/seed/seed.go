// Package seed loads the static reference data: sectors, companies and feed
// topics.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
)

//go:embed reference.yaml
var defaultReference []byte

// CompanyEntry is a company in the reference file.
type CompanyEntry struct {
	Ticker string `yaml:"ticker"`
	Name   string `yaml:"name"`
	Sector string `yaml:"sector"`
}

// Reference is the parsed reference file.
type Reference struct {
	Sectors   []string       `yaml:"sectors"`
	Companies []CompanyEntry `yaml:"companies"`
	Topics    []string       `yaml:"topics"`
}

// Result counts what Apply wrote.
type Result struct {
	Sectors   int
	Companies int
	Topics    int
}

// Default returns the embedded reference data.
func Default() (*Reference, error) {
	return Parse(defaultReference)
}

// Parse decodes and validates reference YAML.
func Parse(data []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Validate checks that every company names a listed sector and that no
// ticker, sector or topic appears twice.
func (r *Reference) Validate() error {
	sectors := make(map[string]bool, len(r.Sectors))
	for _, s := range r.Sectors {
		if s == "" {
			return fmt.Errorf("empty sector name")
		}
		if sectors[s] {
			return fmt.Errorf("duplicate sector %q", s)
		}
		sectors[s] = true
	}

	tickers := make(map[string]bool, len(r.Companies))
	for _, c := range r.Companies {
		if c.Ticker == "" || c.Name == "" {
			return fmt.Errorf("company %q needs a ticker and a name", c.Ticker+c.Name)
		}
		if c.Ticker != strings.ToUpper(c.Ticker) {
			return fmt.Errorf("ticker %q must be upper case", c.Ticker)
		}
		if tickers[c.Ticker] {
			return fmt.Errorf("duplicate ticker %q", c.Ticker)
		}
		tickers[c.Ticker] = true
		if !sectors[c.Sector] {
			return fmt.Errorf("company %s refers to unknown sector %q", c.Ticker, c.Sector)
		}
	}

	topics := make(map[string]bool, len(r.Topics))
	for _, t := range r.Topics {
		if topics[t] {
			return fmt.Errorf("duplicate topic %q", t)
		}
		topics[t] = true
	}
	return nil
}

// Seeder writes reference data idempotently.
type Seeder struct {
	tx         database.TxRunner
	references repositories.ReferenceRepository
	topics     repositories.TopicRepository
	logger     *zap.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(
	tx database.TxRunner,
	references repositories.ReferenceRepository,
	topics repositories.TopicRepository,
	logger *zap.Logger,
) *Seeder {
	return &Seeder{
		tx:         tx,
		references: references,
		topics:     topics,
		logger:     logger.Named("seed"),
	}
}

// Apply upserts ref in one transaction. Running it again changes nothing
// except company names and sectors edited in the file.
func (s *Seeder) Apply(ctx context.Context, ref *Reference) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		sectorIDs, err := s.references.UpsertSectors(ctx, ref.Sectors)
		if err != nil {
			return err
		}

		companies := make([]*models.Company, 0, len(ref.Companies))
		for _, c := range ref.Companies {
			id, ok := sectorIDs[c.Sector]
			if !ok {
				return fmt.Errorf("sector %q of %s was not stored", c.Sector, c.Ticker)
			}
			companies = append(companies, &models.Company{Ticker: c.Ticker, Name: c.Name, SectorID: id})
		}
		if err := s.references.UpsertCompanies(ctx, companies); err != nil {
			return err
		}

		topicIDs, err := s.topics.EnsureTopics(ctx, ref.Topics)
		if err != nil {
			return fmt.Errorf("failed to seed topics: %w", err)
		}

		result = Result{Sectors: len(sectorIDs), Companies: len(companies), Topics: len(topicIDs)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("Reference data seeded",
		zap.Int("sectors", result.Sectors),
		zap.Int("companies", result.Companies),
		zap.Int("topics", result.Topics))
	return result, nil
}
