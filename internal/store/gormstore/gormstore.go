package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/spliteth/pkg/splitbill"
)

const (
	constraintRecordPrimary = "transaction_records_pkey"
	defaultMetadataJSON     = "{}"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectRecord      = "record"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeMark           = "mark"
	errorCodeMissing        = "missing"
)

// Store implements splitbill.Journal using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the journal schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&TransactionRecord{})
}

// Append inserts a journaled submission. A reused record id reports
// ErrDuplicateRecord.
func (store *Store) Append(ctx context.Context, record splitbill.TransactionRecord) error {
	model := TransactionRecord{
		RecordID:  record.RecordID,
		BillID:    record.BillID,
		Action:    string(record.Action),
		TxHash:    record.TxHash,
		Sender:    record.Sender.String(),
		ValueWei:  record.ValueWei,
		Status:    string(record.Status),
		Metadata:  datatypesJSON(record.MetadataJSON),
		CreatedAt: time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() || record.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
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
	result := store.db.WithContext(ctx).
		Model(&TransactionRecord{}).
		Where("record_id = ?", recordID).
		Updates(map[string]interface{}{
			"status":  string(status),
			"tx_hash": txHash,
			"bill_id": billID,
		})
	if result.Error != nil {
		return wrapStoreError(errorCodeMark, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorCodeMissing, splitbill.ErrNotFound)
	}
	return nil
}

// ListBySender returns the sender's journal, newest first.
func (store *Store) ListBySender(ctx context.Context, sender splitbill.Address, limit int) ([]splitbill.TransactionRecord, error) {
	var rows []TransactionRecord
	err := store.db.WithContext(ctx).
		Where("sender = ?", sender.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	records := make([]splitbill.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapTransactionRecord(row)
		if err != nil {
			return nil, wrapStoreError(errorCodeList, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func mapTransactionRecord(row TransactionRecord) (splitbill.TransactionRecord, error) {
	sender, err := splitbill.NewAddress(row.Sender)
	if err != nil {
		return splitbill.TransactionRecord{}, err
	}
	return splitbill.TransactionRecord{
		RecordID:       row.RecordID,
		BillID:         row.BillID,
		Action:         splitbill.Action(row.Action),
		TxHash:         row.TxHash,
		Sender:         sender,
		ValueWei:       row.ValueWei,
		Status:         splitbill.TxStatus(row.Status),
		MetadataJSON:   string(row.Metadata),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func wrapStoreError(code string, err error) error {
	return splitbill.WrapError(errorOperationStore, errorSubjectRecord, code, err)
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isRecordConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintRecordPrimary
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
