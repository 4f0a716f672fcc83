package repository

import (
	"context"
	"fmt"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/scheduling"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const propertyColumns = `id, code, title, COALESCE(description, ''), status,
	street, neighborhood, city, COALESCE(price, 0), COALESCE(bedrooms, 0), COALESCE(area_m2, 0)`

func scanProperty(row pgx.Row) (*domain.Property, error) {
	var p domain.Property
	err := row.Scan(
		&p.ID, &p.Code, &p.Title, &p.Description, &p.Status,
		&p.Street, &p.Neighborhood, &p.City, &p.Price, &p.Bedrooms, &p.AreaM2,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetAvailableByID loads an available property by id. Unavailable or
// unknown properties return nil without error; the engine treats both as
// an unresolved reference.
func (r *Repository) GetAvailableByID(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1 AND status = 'available'`
	p, err := scanProperty(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load property: %w", err)
	}
	return p, nil
}

// GetAvailableByCode loads an available property by listing code,
// case-insensitive.
func (r *Repository) GetAvailableByCode(ctx context.Context, code string) (*domain.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties
		WHERE upper(code) = upper($1) AND status = 'available'`
	p, err := scanProperty(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load property by code: %w", err)
	}
	return p, nil
}

// SearchAvailable runs a fuzzy match of an address-like fragment over the
// location columns. At most three rows come back; the caller turns a
// multi-row result into a disambiguation prompt.
func (r *Repository) SearchAvailable(ctx context.Context, fragment string) ([]domain.Property, error) {
	pattern := "%" + scheduling.EscapeLike(fragment) + "%"
	query := `SELECT ` + propertyColumns + ` FROM properties
		WHERE status = 'available'
		AND (street ILIKE $1 OR neighborhood ILIKE $1 OR city ILIKE $1
			OR title ILIKE $1 OR code ILIKE $1)
		ORDER BY created_at
		LIMIT 3`

	rows, err := r.pool.Query(ctx, query, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	defer rows.Close()

	var results []domain.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		results = append(results, *p)
	}
	return results, rows.Err()
}

// ListAvailable returns up to limit available properties for the agent's
// grounding block.
func (r *Repository) ListAvailable(ctx context.Context, limit int) ([]domain.Property, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	query := `SELECT ` + propertyColumns + ` FROM properties
		WHERE status = 'available' ORDER BY created_at LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var results []domain.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		results = append(results, *p)
	}
	return results, rows.Err()
}

// GetProperty loads a property regardless of status. Confirmed visits still
// reference listings that were sold or withdrawn afterwards.
func (r *Repository) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	p, err := scanProperty(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load property: %w", err)
	}
	return p, nil
}
