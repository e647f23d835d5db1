package postgres

import (
	"database/sql"
	"fmt"

	"github.com/makola-lab/project-makola/internal/core/model"
	"github.com/makola-lab/project-makola/internal/core/storage"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanProductRow scans a database row into a Product struct.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
// Callers translate sql.ErrNoRows themselves.
func scanProductRow(row scanner) (*model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID,
		&p.SellerID,
		&p.Name,
		&p.Price,
		&p.Status,
		&p.Views,
		&p.Likes,
		&p.Sales,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// requireRowAffected maps a zero-row UPDATE/DELETE to storage.ErrNotFound.
func requireRowAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
