// Package pgstore implements the transaction journal on a pgx pool.
package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

const (
	constraintRecordPrimary = "transaction_records_pkey"
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectRecord      = "record"
	errorSubjectSchema      = "schema"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeMark           = "mark"
	errorCodeMigrate        = "migrate"
	errorCodeMissing        = "missing"

	sqlCreateSchema = `
		create table if not exists transaction_records(
			record_id uuid primary key,
			bill_id bigint not null,
			action text not null,
			tx_hash text not null default '',
			sender text not null,
			value_wei text not null,
			status text not null,
			metadata jsonb not null default '{}',
			created_at timestamptz not null
		);
		create index if not exists idx_tx_records_sender_created
			on transaction_records(sender, created_at desc);
		create index if not exists idx_tx_records_bill
			on transaction_records(bill_id);
	`

	sqlInsertRecord = `
		insert into transaction_records(
			record_id, bill_id, action, tx_hash, sender, value_wei, status, metadata, created_at
		)
		values(
			$1, $2, $3, $4, $5, $6, $7,
			coalesce(nullif($8,''),'{}')::jsonb,
			to_timestamp($9)
		)
	`

	sqlMarkResult = `
		update transaction_records
		set status = $2, tx_hash = $3, bill_id = $4
		where record_id = $1
	`

	sqlListBySender = `
		select
			record_id::text,
			bill_id,
			action,
			coalesce(tx_hash,''),
			sender,
			value_wei,
			status,
			coalesce(metadata::text,'{}'),
			extract(epoch from created_at)::bigint
		from transaction_records
		where sender = $1
		order by created_at desc
		limit $2
	`
)

// Store implements splitbill.Journal using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the journal schema when it does not exist yet.
func (store *Store) Migrate(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return splitbill.WrapError(errorOperationStore, errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// Append inserts a journaled submission. A reused record id reports
// ErrDuplicateRecord.
func (store *Store) Append(ctx context.Context, record splitbill.TransactionRecord) error {
	_, err := store.pool.Exec(ctx, sqlInsertRecord,
		record.RecordID,
		record.BillID,
		string(record.Action),
		record.TxHash,
		record.Sender.String(),
		record.ValueWei,
		string(record.Status),
		record.MetadataJSON,
		record.CreatedUnixUTC,
	)
	if isRecordConflict(err) {
		return wrapStoreError(errorCodeDuplicate, splitbill.ErrDuplicateRecord)
	}
	if err != nil {
		return wrapStoreError(errorCodeInsert, err)
	}
	return nil
}

// MarkResult finalizes a submission with its mined outcome.
func (store *Store) MarkResult(ctx context.Context, recordID string, status splitbill.TxStatus, txHash string, billID uint64) error {
	tag, err := store.pool.Exec(ctx, sqlMarkResult, recordID, string(status), txHash, billID)
	if err != nil {
		return wrapStoreError(errorCodeMark, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorCodeMissing, splitbill.ErrNotFound)
	}
	return nil
}

// ListBySender returns the sender's journal, newest first.
func (store *Store) ListBySender(ctx context.Context, sender splitbill.Address, limit int) ([]splitbill.TransactionRecord, error) {
	rows, err := store.pool.Query(ctx, sqlListBySender, sender.String(), limit)
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	return records, nil
}

func scanRecords(rows pgx.Rows) ([]splitbill.TransactionRecord, error) {
	records := make([]splitbill.TransactionRecord, 0, 32)
	for rows.Next() {
		var (
			recordIDValue    string
			billIDValue      uint64
			actionValue      string
			txHashValue      string
			senderValue      string
			valueWeiValue    string
			statusValue      string
			metadataValue    string
			createdAtUnixUTC int64
		)
		if err := rows.Scan(
			&recordIDValue,
			&billIDValue,
			&actionValue,
			&txHashValue,
			&senderValue,
			&valueWeiValue,
			&statusValue,
			&metadataValue,
			&createdAtUnixUTC,
		); err != nil {
			return nil, err
		}
		sender, err := splitbill.NewAddress(senderValue)
		if err != nil {
			return nil, err
		}
		records = append(records, splitbill.TransactionRecord{
			RecordID:       recordIDValue,
			BillID:         billIDValue,
			Action:         splitbill.Action(actionValue),
			TxHash:         txHashValue,
			Sender:         sender,
			ValueWei:       valueWeiValue,
			Status:         splitbill.TxStatus(statusValue),
			MetadataJSON:   metadataValue,
			CreatedUnixUTC: createdAtUnixUTC,
		})
	}
	return records, rows.Err()
}

func wrapStoreError(code string, err error) error {
	return splitbill.WrapError(errorOperationStore, errorSubjectRecord, code, err)
}

func isRecordConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintRecordPrimary
	}
	return false
}
