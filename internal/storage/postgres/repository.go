// Package postgres is the PostgreSQL backend, for deployments where several
// app instances share one database. Write semantics match the sqlite backend:
// the log append and the balance application commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"utangku/internal/core"
	"utangku/internal/store"
)

const uniqueViolation = "23505"

type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	debtorHub *store.Hub[[]core.Debtor]
	txHub     *store.Hub[[]core.Transaction]

	now func() time.Time
}

var _ store.Store = (*Repository)(nil)

func New(ctx context.Context, dsn string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{
		pool:      pool,
		logger:    logger,
		debtorHub: store.NewHub[[]core.Debtor](),
		txHub:     store.NewHub[[]core.Transaction](),
		now:       time.Now,
	}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) CreateDebtor(ctx context.Context, d core.Debtor, first core.Transaction) (core.Debtor, core.Transaction, error) {
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

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO debtors(id, owner_id, name, nickname, phone, photo_base64, total_debt, created_at, updated_at)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, d.ID, d.OwnerID, d.Name, d.Nickname, d.Phone, d.PhotoBase64, d.TotalDebt, d.CreatedAt, d.UpdatedAt); err != nil {
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

func (r *Repository) Record(ctx context.Context, w store.LedgerWrite) (core.Transaction, error) {
	t := w.Transaction
	t.ID = uuid.NewString()
	t.CreatedAt = r.now()

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var name string
		err := tx.QueryRow(ctx, `
			SELECT name FROM debtors WHERE owner_id=$1 AND id=$2 FOR UPDATE
		`, t.OwnerID, t.DebtorID).Scan(&name)
		if errors.Is(err, pgx.ErrNoRows) {
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
			balance = `total_debt + $1`
		case store.BalanceSet:
			balance = `$1`
		default:
			return fmt.Errorf("unknown balance op %d", w.Op)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE debtors SET total_debt = `+balance+`, updated_at=$2 WHERE owner_id=$3 AND id=$4
		`, w.Value, t.CreatedAt, t.OwnerID, t.DebtorID); err != nil {
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

func (r *Repository) DeleteDebtor(ctx context.Context, ownerID, debtorID string) error {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM debtors WHERE owner_id=$1 AND id=$2`, ownerID, debtorID)
		if err != nil {
			return fmt.Errorf("delete debtor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrDebtorNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE owner_id=$1 AND debtor_id=$2`, ownerID, debtorID); err != nil {
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

func (r *Repository) GetDebtor(ctx context.Context, ownerID, debtorID string) (core.Debtor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, nickname, phone, photo_base64, total_debt, created_at, updated_at
		FROM debtors WHERE owner_id=$1 AND id=$2
	`, ownerID, debtorID)
	d, err := scanDebtor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Debtor{}, store.ErrDebtorNotFound
	}
	return d, err
}

func (r *Repository) ListDebtors(ctx context.Context, ownerID string) ([]core.Debtor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, name, nickname, phone, photo_base64, total_debt, created_at, updated_at
		FROM debtors WHERE owner_id=$1 ORDER BY updated_at DESC
	`, ownerID)
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

func (r *Repository) ListTransactions(ctx context.Context, ownerID, debtorID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, owner_id, debtor_id, debtor_name, amount, type, note, created_at
		FROM transactions WHERE owner_id=$1 AND debtor_id=$2 ORDER BY seq DESC
	`, ownerID, debtorID)
}

func (r *Repository) ListAllTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, owner_id, debtor_id, debtor_name, amount, type, note, created_at
		FROM transactions WHERE owner_id=$1 ORDER BY seq DESC
	`, ownerID)
}

func (r *Repository) WatchDebtors(ctx context.Context, ownerID string) (<-chan []core.Debtor, store.CancelFunc, error) {
	snapshot, err := r.ListDebtors(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := r.debtorHub.Subscribe(ownerID)
	store.Offer(ch, snapshot)
	return ch, cancel, nil
}

// WatchTransactions with an empty debtorID follows the owner's whole log.
// Snapshots reflect writes made through this instance only.
func (r *Repository) WatchTransactions(ctx context.Context, ownerID, debtorID string) (<-chan []core.Transaction, store.CancelFunc, error) {
	var snapshot []core.Transaction
	var err error
	if debtorID == "" {
		snapshot, err = r.ListAllTransactions(ctx, ownerID)
	} else {
		snapshot, err = r.ListTransactions(ctx, ownerID, debtorID)
	}
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := r.txHub.Subscribe(ownerID + "/" + debtorID)
	store.Offer(ch, snapshot)
	return ch, cancel, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, last_login FROM users WHERE email=$1
	`, strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, store.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = r.now()
	u.LastLogin = u.CreatedAt

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users(id, email, password_hash, created_at, last_login) VALUES($1,$2,$3,$4,$5)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.LastLogin)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.User{}, store.ErrUserExists
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_login=$1 WHERE id=$2`, at, userID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) notify(ctx context.Context, ownerID, debtorID string) {
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

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var t core.Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.DebtorID, &t.DebtorName, &t.Amount, &typ, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TransactionType(typ)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t core.Transaction) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions(id, owner_id, debtor_id, debtor_name, amount, type, note, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.OwnerID, t.DebtorID, t.DebtorName, t.Amount, string(t.Type), t.Note, t.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func scanDebtor(row pgx.Row) (core.Debtor, error) {
	var d core.Debtor
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Nickname, &d.Phone,
		&d.PhotoBase64, &d.TotalDebt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return core.Debtor{}, err
	}
	return d, nil
}
