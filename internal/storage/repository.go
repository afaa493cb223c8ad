// Package storage is the SQLite backend. The ledger's dual write (log append
// plus balance application) and the delete cascade each run inside one
// database transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"utangku/internal/core"
	"utangku/internal/store"
)

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger

	debtorHub *store.Hub[[]core.Debtor]
	txHub     *store.Hub[[]core.Transaction]

	now func() time.Time
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite allows one writer; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:        db,
		logger:    logger,
		debtorHub: store.NewHub[[]core.Debtor](),
		txHub:     store.NewHub[[]core.Transaction](),
		now:       time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateDebtor(ctx context.Context, d core.Debtor, first core.Transaction) (core.Debtor, core.Transaction, error) {
	now := r.now()
	d.ID = uuid.NewString()
	d.CreatedAt = now
	d.UpdatedAt = now
	if err := d.Validate(); err != nil {
		return core.Debtor{}, core.Transaction{}, err
	}

	first.ID = uuid.NewString()
	first.DebtorID = d.ID
	first.DebtorName = d.Name
	first.CreatedAt = now
	if err := first.Validate(); err != nil {
		return core.Debtor{}, core.Transaction{}, err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO debtors (id, owner_id, name, nickname, phone, photo_base64, total_debt, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.OwnerID, d.Name, d.Nickname, d.Phone, d.PhotoBase64, d.TotalDebt,
			d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("insert debtor: %w", err)
		}
		return insertTransaction(ctx, tx, first)
	})
	if err != nil {
		return core.Debtor{}, core.Transaction{}, err
	}

	r.logger.InfoContext(ctx, "debtor created", "debtor_id", d.ID, "opening_debt", d.TotalDebt)
	r.notify(ctx, d.OwnerID, d.ID)
	return d, first, nil
}

func (r *SQLiteRepository) Record(ctx context.Context, w store.LedgerWrite) (core.Transaction, error) {
	t := w.Transaction
	t.ID = uuid.NewString()
	t.CreatedAt = r.now()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var name string
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM debtors WHERE owner_id = ? AND id = ?`,
			t.OwnerID, t.DebtorID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrDebtorNotFound
		}
		if err != nil {
			return fmt.Errorf("load debtor: %w", err)
		}
		if t.DebtorName == "" {
			t.DebtorName = name
		}
		if err := t.Validate(); err != nil {
			return err
		}

		var balance string
		switch w.Op {
		case store.BalanceIncrement:
			balance = `total_debt + ?`
		case store.BalanceSet:
			balance = `?`
		default:
			return fmt.Errorf("unknown balance op %d", w.Op)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE debtors SET total_debt = `+balance+`, updated_at = ? WHERE owner_id = ? AND id = ?`,
			w.Value, t.CreatedAt.UnixNano(), t.OwnerID, t.DebtorID); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return insertTransaction(ctx, tx, t)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	r.notify(ctx, t.OwnerID, t.DebtorID)
	return t, nil
}

func (r *SQLiteRepository) DeleteDebtor(ctx context.Context, ownerID, debtorID string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM debtors WHERE owner_id = ? AND id = ?`, ownerID, debtorID)
		if err != nil {
			return fmt.Errorf("delete debtor: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrDebtorNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transactions WHERE owner_id = ? AND debtor_id = ?`, ownerID, debtorID); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "debtor deleted", "debtor_id", debtorID)
	r.notify(ctx, ownerID, debtorID)
	return nil
}

func (r *SQLiteRepository) GetDebtor(ctx context.Context, ownerID, debtorID string) (core.Debtor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, nickname, phone, photo_base64, total_debt, created_at, updated_at
		 FROM debtors WHERE owner_id = ? AND id = ?`, ownerID, debtorID)
	d, err := scanDebtor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debtor{}, store.ErrDebtorNotFound
	}
	return d, err
}

func (r *SQLiteRepository) ListDebtors(ctx context.Context, ownerID string) ([]core.Debtor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, nickname, phone, photo_base64, total_debt, created_at, updated_at
		 FROM debtors WHERE owner_id = ? ORDER BY updated_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list debtors: %w", err)
	}
	defer rows.Close()

	debtors := []core.Debtor{}
	for rows.Next() {
		d, err := scanDebtor(rows)
		if err != nil {
			return nil, err
		}
		debtors = append(debtors, d)
	}
	return debtors, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID, debtorID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT id, owner_id, debtor_id, debtor_name, amount, type, note, created_at
		 FROM transactions WHERE owner_id = ? AND debtor_id = ?
		 ORDER BY created_at DESC, rowid DESC`, ownerID, debtorID)
}

func (r *SQLiteRepository) ListAllTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT id, owner_id, debtor_id, debtor_name, amount, type, note, created_at
		 FROM transactions WHERE owner_id = ?
		 ORDER BY created_at DESC, rowid DESC`, ownerID)
}

func (r *SQLiteRepository) WatchDebtors(ctx context.Context, ownerID string) (<-chan []core.Debtor, store.CancelFunc, error) {
	snapshot, err := r.ListDebtors(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := r.debtorHub.Subscribe(ownerID)
	store.Offer(ch, snapshot)
	return ch, cancel, nil
}

// WatchTransactions with an empty debtorID follows the owner's whole log.
func (r *SQLiteRepository) WatchTransactions(ctx context.Context, ownerID, debtorID string) (<-chan []core.Transaction, store.CancelFunc, error) {
	snapshot, err := r.listForWatch(ctx, ownerID, debtorID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := r.txHub.Subscribe(ownerID + "/" + debtorID)
	store.Offer(ch, snapshot)
	return ch, cancel, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	var createdAt, lastLogin int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, last_login FROM users WHERE email = ?`,
		strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, store.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, createdAt)
	u.LastLogin = time.Unix(0, lastLogin)
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = r.now()
	u.LastLogin = u.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, last_login) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UnixNano(), u.LastLogin.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.User{}, store.ErrUserExists
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, at.UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// notify refreshes watch snapshots after a committed write. Watch delivery is
// best effort; a failed snapshot query only loses one push.
func (r *SQLiteRepository) notify(ctx context.Context, ownerID, debtorID string) {
	if debtors, err := r.ListDebtors(ctx, ownerID); err == nil {
		r.debtorHub.Publish(ownerID, debtors)
	} else {
		r.logger.WarnContext(ctx, "debtor snapshot for watch", "error", err)
	}
	if txs, err := r.ListTransactions(ctx, ownerID, debtorID); err == nil {
		r.txHub.Publish(ownerID+"/"+debtorID, txs)
	}
	if txs, err := r.ListAllTransactions(ctx, ownerID); err == nil {
		r.txHub.Publish(ownerID+"/", txs)
	}
}

func (r *SQLiteRepository) listForWatch(ctx context.Context, ownerID, debtorID string) ([]core.Transaction, error) {
	if debtorID == "" {
		return r.ListAllTransactions(ctx, ownerID)
	}
	return r.ListTransactions(ctx, ownerID, debtorID)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var t core.Transaction
		var typ string
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.DebtorID, &t.DebtorName, &t.Amount, &typ, &t.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TransactionType(typ)
		t.CreatedAt = time.Unix(0, createdAt)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t core.Transaction) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, owner_id, debtor_id, debtor_name, amount, type, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.DebtorID, t.DebtorName, t.Amount, string(t.Type), t.Note,
		t.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebtor(row rowScanner) (core.Debtor, error) {
	var d core.Debtor
	var createdAt, updatedAt int64
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Nickname, &d.Phone,
		&d.PhotoBase64, &d.TotalDebt, &createdAt, &updatedAt); err != nil {
		return core.Debtor{}, err
	}
	d.CreatedAt = time.Unix(0, createdAt)
	d.UpdatedAt = time.Unix(0, updatedAt)
	return d, nil
}
