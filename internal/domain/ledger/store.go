package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"hrcore/internal/platform/querier"
)

const lotColumns = "id, employee_id, granted_at, expires_at, quantity, remaining, source, created_at"

const txnColumns = "id, employee_id, lot_id, type, amount, leave_request_id, occurred_at, COALESCE(comment, '')"

// Store is the pgx-backed ledger store. Serialization conflicts between
// concurrent consumes are retried as fresh attempts so each retry re-reads
// the balance.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const serializationFailure = "40001"

func (s *Store) InTx(ctx context.Context, fn func(TxAPI) error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		if err := fn(&storeTx{tx: tx}); err != nil {
			_ = tx.Rollback(ctx)
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

func (s *Store) ActiveLots(ctx context.Context, employeeID string, asOf time.Time) ([]Lot, error) {
	return queryLots(ctx, s.DB, `
    SELECT `+lotColumns+`
    FROM leave_coin_lots
    WHERE employee_id = $1 AND expires_at > $2 AND remaining > 0
    ORDER BY expires_at ASC, id ASC
  `, employeeID, asOf)
}

func (s *Store) RecentTransactions(ctx context.Context, employeeID string, limit int) ([]Transaction, error) {
	return queryTxns(ctx, s.DB, `
    SELECT `+txnColumns+`
    FROM leave_coin_txns
    WHERE employee_id = $1
    ORDER BY occurred_at DESC, id DESC
    LIMIT $2
  `, employeeID, limit)
}

func (s *Store) TransactionsInRange(ctx context.Context, employeeID string, from, to time.Time) ([]Transaction, error) {
	return queryTxns(ctx, s.DB, `
    SELECT `+txnColumns+`
    FROM leave_coin_txns
    WHERE employee_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
    ORDER BY occurred_at ASC, id ASC
  `, employeeID, from, to)
}

type storeTx struct {
	tx pgx.Tx
}

// NewTx wraps an already-open pgx transaction so another domain (the leave
// workflow) can run ledger mutations inside its own transaction boundary.
func NewTx(tx pgx.Tx) TxAPI {
	return &storeTx{tx: tx}
}

func (t *storeTx) LockActiveLots(ctx context.Context, employeeID string, asOf time.Time) ([]Lot, error) {
	return queryLots(ctx, t.tx, `
    SELECT `+lotColumns+`
    FROM leave_coin_lots
    WHERE employee_id = $1 AND expires_at > $2 AND remaining > 0
    ORDER BY expires_at ASC, id ASC
    FOR UPDATE
  `, employeeID, asOf)
}

func (t *storeTx) LockExpirableLots(ctx context.Context, asOf time.Time) ([]Lot, error) {
	return queryLots(ctx, t.tx, `
    SELECT `+lotColumns+`
    FROM leave_coin_lots
    WHERE expires_at <= $1 AND remaining > 0
    ORDER BY expires_at ASC, id ASC
    FOR UPDATE
  `, asOf)
}

func (t *storeTx) InsertLot(ctx context.Context, lot *Lot) error {
	return t.tx.QueryRow(ctx, `
    INSERT INTO leave_coin_lots (employee_id, granted_at, expires_at, quantity, remaining, source)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at
  `, lot.EmployeeID, lot.GrantedAt, lot.ExpiresAt, lot.Quantity, lot.Remaining, lot.Source).Scan(&lot.ID, &lot.CreatedAt)
}

func (t *storeTx) UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
    UPDATE leave_coin_lots SET remaining = $1 WHERE id = $2
  `, remaining, lotID)
	return err
}

func (t *storeTx) InsertTransaction(ctx context.Context, txn *Transaction) error {
	return t.tx.QueryRow(ctx, `
    INSERT INTO leave_coin_txns (employee_id, lot_id, type, amount, leave_request_id, occurred_at, comment)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id
  `, txn.EmployeeID, txn.LotID, txn.Type, txn.Amount, txn.LeaveRequestID, txn.OccurredAt, nullIfEmpty(txn.Comment)).Scan(&txn.ID)
}

func queryLots(ctx context.Context, q querier.Querier, sql string, args ...any) ([]Lot, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.EmployeeID, &lot.GrantedAt, &lot.ExpiresAt, &lot.Quantity, &lot.Remaining, &lot.Source, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func queryTxns(ctx context.Context, q querier.Querier, sql string, args ...any) ([]Transaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		if err := rows.Scan(&txn.ID, &txn.EmployeeID, &txn.LotID, &txn.Type, &txn.Amount, &txn.LeaveRequestID, &txn.OccurredAt, &txn.Comment); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
