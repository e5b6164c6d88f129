package ledger

import (
	"context"
	"fmt"

	"github.com/lisanmuaddib/balance-sweeper/pkg/db"
	"github.com/lisanmuaddib/balance-sweeper/pkg/db/models"
	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Postgres persists outcomes through GORM.
type Postgres struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewPostgres migrates and connects to the database described by config.
func NewPostgres(config db.Config, logger *logrus.Logger) (*Postgres, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := db.Open(logger, config)
	if err != nil {
		return nil, err
	}

	return &Postgres{db: conn, logger: logger}, nil
}

// Record inserts one outcome.
func (p *Postgres) Record(ctx context.Context, record sweep.Record) error {
	row := newSweepRecord(record)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert sweep record: %w", err)
	}
	return nil
}

// Completed reports whether address has a recorded success.
func (p *Postgres) Completed(ctx context.Context, address string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&models.SweepRecord{}).
		Where("address = ? AND outcome = ?", normalizeAddress(address), sweep.OutcomeSuccess.String()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query sweep records: %w", err)
	}
	return count > 0, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newSweepRecord(record sweep.Record) models.SweepRecord {
	row := models.SweepRecord{
		RunID:      record.RunID,
		JobIndex:   record.Index,
		Name:       record.Name,
		Address:    normalizeAddress(record.Address),
		Recipient:  normalizeAddress(record.Recipient),
		Outcome:    record.Outcome.String(),
		Code:       record.Code,
		Reason:     record.Reason,
		TxHash:     record.TxHash,
		BalanceWei: bigString(record.Balance),
		FeeWei:     bigString(record.Fee),
		AmountWei:  bigString(record.Amount),
		RecordedAt: record.At,
	}
	if record.FiatValue != nil {
		row.FiatValue = decimal.NullDecimal{Decimal: *record.FiatValue, Valid: true}
	}
	return row
}
