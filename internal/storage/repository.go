package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"pricememory/internal/core"

	_ "modernc.org/sqlite"
)

const purchasesTable = "purchases"

var purchaseColumns = []string{
	"id", "item_name", "amount", "purchased_at", "note",
	"photo_name", "photo_type", "photo_data_url", "created_at",
}

type SQLiteRepository struct {
	db *sql.DB
}

var _ PurchaseRepository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of concurrent add/delete.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Add inserts p. An existing id leaves the table untouched and yields
// ErrDuplicateID.
func (r *SQLiteRepository) Add(ctx context.Context, p core.Purchase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var photoName, photoType, photoURL sql.NullString
	if p.InvoicePhoto != nil {
		photoName = sql.NullString{String: p.InvoicePhoto.Name, Valid: true}
		photoType = sql.NullString{String: p.InvoicePhoto.Type, Valid: true}
		photoURL = sql.NullString{String: p.InvoicePhoto.DataURL, Valid: true}
	}

	query, args, err := squirrel.Insert(purchasesTable).
		Columns(purchaseColumns...).
		Values(
			p.ID, p.ItemName, p.Amount.String(), p.PurchasedAt.UnixNano(), p.Note,
			photoName, photoType, photoURL, createdAt.UnixNano(),
		).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert purchase %s: %w", p.ID, ErrDuplicateID)
	}

	slog.DebugContext(ctx, "Purchase saved to SQLite",
		"id", p.ID,
		"item_name", p.ItemName,
		"amount", p.Amount.String())

	return nil
}

// List returns all purchases ordered by purchase date, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Purchase, error) {
	query, args, err := squirrel.Select(purchaseColumns...).
		From(purchasesTable).
		OrderBy("purchased_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	purchases := make([]core.Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Purchase, error) {
	query, args, err := squirrel.Select(purchaseColumns...).
		From(purchasesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return core.Purchase{}, fmt.Errorf("build select: %w", err)
	}

	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Purchase{}, ErrNotFound
	}
	if err != nil {
		return core.Purchase{}, fmt.Errorf("get purchase %s: %w", id, err)
	}
	return p, nil
}

// Delete removes the purchase with id. A missing id is not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	query, args, err := squirrel.Delete(purchasesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete purchase %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete purchase %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	query, args, err := squirrel.Select("COUNT(*)").From(purchasesTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count purchases: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (core.Purchase, error) {
	var (
		p                             core.Purchase
		amount                        string
		purchasedAt, createdAt        int64
		photoName, photoType, dataURL sql.NullString
	)
	if err := row.Scan(&p.ID, &p.ItemName, &amount, &purchasedAt, &p.Note,
		&photoName, &photoType, &dataURL, &createdAt); err != nil {
		return core.Purchase{}, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Amount = d
	p.PurchasedAt = time.Unix(0, purchasedAt)
	p.CreatedAt = time.Unix(0, createdAt)
	if dataURL.Valid && dataURL.String != "" {
		p.InvoicePhoto = &core.InvoicePhoto{
			Name:    photoName.String,
			Type:    photoType.String,
			DataURL: dataURL.String,
		}
	}
	return p, nil
}
