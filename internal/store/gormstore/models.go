package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionRecord mirrors the transaction_records table.
type TransactionRecord struct {
	RecordID  string         `gorm:"type:uuid;primaryKey"`
	BillID    uint64         `gorm:"not null;index:idx_tx_records_bill"`
	Action    string         `gorm:"not null"`
	TxHash    string         `gorm:"index:idx_tx_records_hash"`
	Sender    string         `gorm:"not null;index:idx_tx_records_sender_created,priority:1"`
	ValueWei  string         `gorm:"not null"`
	Status    string         `gorm:"not null"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null;index:idx_tx_records_sender_created,priority:2"`
}

func (TransactionRecord) TableName() string { return "transaction_records" }

func (record *TransactionRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	return nil
}
