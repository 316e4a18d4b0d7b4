// Package database persists trade history. Persistence is advisory: a
// database failure is logged and never blocks a trading cycle.
package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// Trade is one position lifecycle record.
type Trade struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Ticket     string `gorm:"index"`
	Symbol     string `gorm:"index"`
	Side       string
	Size       decimal.Decimal `gorm:"type:decimal(20,8)"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(20,8)"`
	ExitPrice  decimal.Decimal `gorm:"type:decimal(20,8)"`
	PnL        decimal.Decimal `gorm:"type:decimal(20,8)"`
	Reason     string
	EntryLevel int
	Regime     string
	Trailing   string
	OpenedAt   time.Time
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SignalRecord keeps an audit trail of evaluated signals.
type SignalRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Symbol     string `gorm:"index"`
	Interval   string
	Action     string
	Confidence float64
	Level      int
	Regime     string
	Reason     string
	CreatedAt  time.Time
}

// New opens a PostgreSQL connection when given a postgres:// URL, otherwise
// a local SQLite file.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Trade{}, &SignalRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// LogOpen records a newly opened position.
func (d *Database) LogOpen(t *Trade) {
	if d == nil {
		return
	}
	if err := d.db.Create(t).Error; err != nil {
		log.Error().Err(err).Str("ticket", t.Ticket).Msg("Failed to log open")
	}
}

// LogClose marks the trade for a ticket as closed.
func (d *Database) LogClose(ticket string, exitPrice, pnl decimal.Decimal, reason string) {
	if d == nil {
		return
	}
	now := time.Now()
	err := d.db.Model(&Trade{}).
		Where("ticket = ? AND closed_at IS NULL", ticket).
		Updates(map[string]interface{}{
			"exit_price": exitPrice,
			"pn_l":       pnl,
			"reason":     reason,
			"closed_at":  &now,
		}).Error
	if err != nil {
		log.Error().Err(err).Str("ticket", ticket).Msg("Failed to log close")
	}
}

// LogSignal records an evaluated signal.
func (d *Database) LogSignal(rec *SignalRecord) {
	if d == nil {
		return
	}
	if err := d.db.Create(rec).Error; err != nil {
		log.Error().Err(err).Msg("Failed to log signal")
	}
}

// RecentTrades returns the latest trade records.
func (d *Database) RecentTrades(limit int) ([]Trade, error) {
	if d == nil {
		return nil, nil
	}
	var trades []Trade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}
