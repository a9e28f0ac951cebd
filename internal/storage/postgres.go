package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/marba/synapse/internal/models"
)

// ErrBrandNotFound is returned when a brand id does not exist.
var ErrBrandNotFound = errors.New("storage: brand not found")

var opportunityColumns = []string{
	"id", "brand_id", "type", "title", "description", "urgency",
	"confidence_score", "source", "detected_at", "expires_at",
}

// Repository reads brands and manages opportunity rows in the hosted Postgres
// database. The schema is owned by the database migrations.
type Repository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewRepository wires a sql.DB implementation.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ActiveBrands returns every brand flagged active.
func (r *Repository) ActiveBrands(ctx context.Context) ([]models.Brand, error) {
	query, args, err := r.sb.
		Select("id", "name", "industry", "location", "website", "is_active").
		From("brands").
		Where(sq.Eq{"is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build brands query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query brands: %w", err)
	}
	defer rows.Close()

	brands := []models.Brand{}
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		brands = append(brands, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("brands rows iteration: %w", err)
	}
	return brands, nil
}

// GetBrand loads one brand by id.
func (r *Repository) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	query, args, err := r.sb.
		Select("id", "name", "industry", "location", "website", "is_active").
		From("brands").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build brand query: %w", err)
	}

	b, err := scanBrand(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandNotFound
	}
	return b, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBrand(row rowScanner) (*models.Brand, error) {
	var (
		b                           models.Brand
		industry, location, website sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Name, &industry, &location, &website, &b.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan brand: %w", err)
	}
	b.Industry = industry.String
	b.Location = location.String
	b.Website = website.String
	return &b, nil
}

// InsertOpportunities writes all rows in a single statement.
func (r *Repository) InsertOpportunities(ctx context.Context, opps []models.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	builder := r.sb.Insert("opportunities").Columns(opportunityColumns...)
	for _, o := range opps {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("invalid opportunity %s: %w", o.ID, err)
		}
		builder = builder.Values(
			o.ID, o.BrandID, string(o.Type), o.Title, o.Description, string(o.Urgency),
			o.ConfidenceScore, o.Source, o.DetectedAt, o.ExpiresAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert opportunities: %w", err)
	}
	return nil
}

// DeleteExpiredOpportunities removes the brand's rows whose expiry is before now.
func (r *Repository) DeleteExpiredOpportunities(ctx context.Context, brandID string, now time.Time) (int64, error) {
	query, args, err := r.sb.
		Delete("opportunities").
		Where(sq.Eq{"brand_id": brandID}).
		Where(sq.Lt{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired opportunities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListOpportunities returns the brand's opportunities that have not expired at now.
func (r *Repository) ListOpportunities(ctx context.Context, brandID string, now time.Time) ([]models.Opportunity, error) {
	query, args, err := r.sb.
		Select(opportunityColumns...).
		From("opportunities").
		Where(sq.Eq{"brand_id": brandID}).
		Where(sq.GtOrEq{"expires_at": now}).
		OrderBy("detected_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build opportunities query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer rows.Close()

	opps := []models.Opportunity{}
	for rows.Next() {
		var (
			o            models.Opportunity
			typ, urgency string
			desc, source sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.BrandID, &typ, &o.Title, &desc, &urgency,
			&o.ConfidenceScore, &source, &o.DetectedAt, &o.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		o.Type = models.OpportunityType(typ)
		o.Urgency = models.Urgency(urgency)
		o.Description = desc.String
		o.Source = source.String
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opportunities rows iteration: %w", err)
	}
	return opps, nil
}
