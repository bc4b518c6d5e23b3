package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"KabuScout/internal/model"
)

// SQLiteBackend stores picks in a single table, replaced whole on every save.
type SQLiteBackend struct {
	db       *sql.DB
	location *time.Location
}

// NewSQLiteBackend creates the picks table if needed.
func NewSQLiteBackend(db *sql.DB, loc *time.Location) (*SQLiteBackend, error) {
	if loc == nil {
		loc = time.Local
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS picks (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		registered_date  TEXT NOT NULL,
		display_name     TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		registered_price REAL NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create picks table: %w", err)
	}
	return &SQLiteBackend{db: db, location: loc}, nil
}

func (b *SQLiteBackend) Load(ctx context.Context) ([]model.Pick, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT registered_date, display_name, symbol, registered_price FROM picks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query picks: %w", err)
	}
	defer rows.Close()

	var picks []model.Pick
	for rows.Next() {
		var date string
		var p model.Pick
		if err := rows.Scan(&date, &p.DisplayName, &p.Symbol, &p.RegisteredPrice); err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		if p.RegisteredDate, err = time.ParseInLocation(DateLayout, date, b.location); err != nil {
			return nil, fmt.Errorf("parse registered_date %q: %w", date, err)
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

func (b *SQLiteBackend) Save(ctx context.Context, picks []model.Pick) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM picks`); err != nil {
		return fmt.Errorf("clear picks: %w", err)
	}
	for _, p := range picks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO picks (registered_date, display_name, symbol, registered_price) VALUES (?,?,?,?)`,
			p.RegisteredDate.In(b.location).Format(DateLayout), p.DisplayName, p.Symbol, p.RegisteredPrice,
		); err != nil {
			return fmt.Errorf("insert pick %s: %w", p.Symbol, err)
		}
	}
	return tx.Commit()
}
