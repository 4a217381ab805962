package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visagelab/visagebot/internal/models"
)

type PackageRepository struct {
	db *sql.DB
}

func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

const packageColumns = `id, code, title, COALESCE(description, ''), currency, price_minor_units, credits, is_active, created_at, updated_at`

func (r *PackageRepository) List(ctx context.Context) ([]models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages ORDER BY price_minor_units ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []models.Package
	for rows.Next() {
		var p models.Package
		if err := rows.Scan(&p.ID, &p.Code, &p.Title, &p.Description, &p.Currency, &p.PriceMinorUnits, &p.Credits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (r *PackageRepository) GetByCode(ctx context.Context, code string) (*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages WHERE code = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, code)
	var p models.Package
	if err := row.Scan(&p.ID, &p.Code, &p.Title, &p.Description, &p.Currency, &p.PriceMinorUnits, &p.Credits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	return &p, nil
}

func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM credit_packages WHERE id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Package
	if err := row.Scan(&p.ID, &p.Code, &p.Title, &p.Description, &p.Currency, &p.PriceMinorUnits, &p.Credits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	return &p, nil
}

func (r *PackageRepository) Create(ctx context.Context, p *models.Package) (*models.Package, error) {
	const query = `
INSERT INTO credit_packages (code, title, description, currency, price_minor_units, credits, is_active)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, p.Code, p.Title, p.Description, p.Currency, p.PriceMinorUnits, p.Credits, p.IsActive)
	if err != nil {
		return nil, fmt.Errorf("insert package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return p, nil
}

func (r *PackageRepository) Update(ctx context.Context, p *models.Package) (*models.Package, error) {
	const query = `
UPDATE credit_packages SET title = ?, description = NULLIF(?, ''), currency = ?, price_minor_units = ?, credits = ?, is_active = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, p.Title, p.Description, p.Currency, p.PriceMinorUnits, p.Credits, p.IsActive, p.ID); err != nil {
		return nil, fmt.Errorf("update package: %w", err)
	}
	return p, nil
}

func (r *PackageRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credit_packages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	return nil
}
