package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SweepRecord is the database model for one job outcome
type SweepRecord struct {
	ID        int64  `gorm:"primaryKey;column:id"`
	RunID     string `gorm:"column:run_id;type:uuid;not null"`
	JobIndex  int    `gorm:"column:job_index;not null"`
	Name      string `gorm:"column:name"`
	Address   string `gorm:"column:address;not null"`
	Recipient string `gorm:"column:recipient;not null"`

	// Outcome
	Outcome string `gorm:"column:outcome;not null"`
	Code    string `gorm:"column:code"`
	Reason  string `gorm:"column:reason"`
	TxHash  string `gorm:"column:tx_hash"`

	// Amounts in base units, stored as NUMERIC(78,0)
	BalanceWei *string             `gorm:"column:balance_wei;type:numeric(78,0)"`
	FeeWei     *string             `gorm:"column:fee_wei;type:numeric(78,0)"`
	AmountWei  *string             `gorm:"column:amount_wei;type:numeric(78,0)"`
	FiatValue  decimal.NullDecimal `gorm:"column:fiat_value;type:numeric"`

	RecordedAt time.Time `gorm:"column:recorded_at;not null"`
}

// TableName specifies the table name for the SweepRecord model
func (SweepRecord) TableName() string {
	return "sweep_records"
}
