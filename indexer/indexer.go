// Package indexer projects committed ledger events into SQL tables for
// history queries the key/value state does not answer directly.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"dineledger/core/events"
	"dineledger/core/types"
	"dineledger/native/payments"
	"dineledger/native/reviews"
	"dineledger/observability"
)

const (
	cursorName   = "ledger"
	defaultLimit = 100
	maxLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// Open connects to the configured database. Supported drivers are sqlite and
// postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Indexer applies bus events to the projection tables.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates the schema and returns an indexer writing to db.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&PaymentRow{}, &ReviewRow{}, &TipRow{}, &ReportRow{}, &Cursor{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: log}, nil
}

// Cursor returns the last applied event sequence.
func (ix *Indexer) Cursor(ctx context.Context) (uint64, error) {
	var cursor Cursor
	err := ix.db.WithContext(ctx).Where("name = ?", cursorName).Limit(1).Find(&cursor).Error
	return cursor.Sequence, err
}

// Run consumes bus events until ctx is cancelled. Retained events after the
// stored cursor are applied first.
func (ix *Indexer) Run(ctx context.Context, bus *events.Bus) error {
	after, err := ix.Cursor(ctx)
	if err != nil {
		return err
	}
	updates, backlog, cancel := bus.Subscribe(after, 0)
	defer cancel()
	for _, evt := range backlog {
		if err := ix.Apply(ctx, evt); err != nil {
			ix.logger.Error("indexer apply failed", "sequence", evt.Sequence, "type", evt.Type, "error", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := ix.Apply(ctx, evt); err != nil {
				ix.logger.Error("indexer apply failed", "sequence", evt.Sequence, "type", evt.Type, "error", err)
			}
		}
	}
}

// Apply projects one event and advances the cursor in the same transaction.
// Events at or below the cursor are ignored.
func (ix *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cursor Cursor
		if err := tx.Where("name = ?", cursorName).Limit(1).Find(&cursor).Error; err != nil {
			return err
		}
		if evt.Sequence != 0 && evt.Sequence <= cursor.Sequence {
			return nil
		}
		if err := project(tx, evt); err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"sequence"}),
		}).Create(&Cursor{Name: cursorName, Sequence: evt.Sequence}).Error; err != nil {
			return err
		}
		observability.Events().RecordIndexed(evt.Type)
		return nil
	})
}

func project(tx *gorm.DB, evt *types.Event) error {
	at := time.Unix(evt.Timestamp, 0).UTC()
	switch evt.Type {
	case payments.EventTypePaymentProcessed:
		id, err := uintAttr(evt, "paymentId")
		if err != nil {
			return err
		}
		amount, fee := bigAttr(evt, "amount"), bigAttr(evt, "fee")
		row := PaymentRow{
			ID:               id,
			Customer:         evt.Attr("customer"),
			Restaurant:       evt.Attr("restaurant"),
			Amount:           amount.String(),
			Fee:              fee.String(),
			RestaurantAmount: new(big.Int).Sub(amount, fee).String(),
			Sequence:         evt.Sequence,
			SettledAt:        at,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	case reviews.EventTypeReviewCreated:
		id, err := uintAttr(evt, "reviewId")
		if err != nil {
			return err
		}
		billID, err := uintAttr(evt, "billId")
		if err != nil {
			return err
		}
		rating, err := strconv.ParseUint(evt.Attr("rating"), 10, 8)
		if err != nil {
			return fmt.Errorf("indexer: rating: %w", err)
		}
		row := ReviewRow{
			ID:         id,
			Reviewer:   evt.Attr("reviewer"),
			Owner:      evt.Attr("reviewer"),
			Restaurant: evt.Attr("restaurant"),
			BillID:     billID,
			Rating:     uint8(rating),
			Active:     true,
			TotalTips:  "0",
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	case reviews.EventTypeReviewTipped:
		id, err := uintAttr(evt, "reviewId")
		if err != nil {
			return err
		}
		tip := TipRow{ReviewID: id, Tipper: evt.Attr("tipper"), Amount: bigAttr(evt, "amount").String(), Sequence: evt.Sequence, TippedAt: at}
		if err := tx.Create(&tip).Error; err != nil {
			return err
		}
		return tx.Model(&ReviewRow{}).Where("id = ?", id).
			Updates(map[string]interface{}{"total_tips": bigAttr(evt, "totalTips").String(), "updated_at": at}).Error
	case reviews.EventTypeReviewReported:
		id, err := uintAttr(evt, "reviewId")
		if err != nil {
			return err
		}
		report := ReportRow{ReviewID: id, Reporter: evt.Attr("reporter"), Reason: evt.Attr("reason"), Sequence: evt.Sequence, ReportedAt: at}
		if err := tx.Create(&report).Error; err != nil {
			return err
		}
		return tx.Model(&ReviewRow{}).Where("id = ?", id).
			Updates(map[string]interface{}{"reports": gorm.Expr("reports + 1"), "updated_at": at}).Error
	case reviews.EventTypeReviewDeactivated:
		id, err := uintAttr(evt, "reviewId")
		if err != nil {
			return err
		}
		return tx.Model(&ReviewRow{}).Where("id = ?", id).
			Updates(map[string]interface{}{"active": false, "updated_at": at}).Error
	case reviews.EventTypeReviewTransferred:
		id, err := uintAttr(evt, "reviewId")
		if err != nil {
			return err
		}
		return tx.Model(&ReviewRow{}).Where("id = ?", id).
			Updates(map[string]interface{}{"owner": evt.Attr("to"), "updated_at": at}).Error
	}
	return nil
}

func uintAttr(evt *types.Event, key string) (uint64, error) {
	v, err := strconv.ParseUint(evt.Attr(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("indexer: %s %s: %w", evt.Type, key, err)
	}
	return v, nil
}

func bigAttr(evt *types.Event, key string) *big.Int {
	v, ok := new(big.Int).SetString(evt.Attr(key), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ListPayments returns indexed payments, newest first.
func (ix *Indexer) ListPayments(ctx context.Context, filter PaymentFilter) ([]PaymentRow, error) {
	stmt := ix.db.WithContext(ctx).Model(&PaymentRow{})
	if filter.Customer != "" {
		stmt = stmt.Where("customer = ?", filter.Customer)
	}
	if filter.Restaurant != "" {
		stmt = stmt.Where("restaurant = ?", filter.Restaurant)
	}
	var rows []PaymentRow
	err := stmt.Order("id desc").Limit(clampLimit(filter.Limit)).Offset(filter.Offset).Find(&rows).Error
	return rows, err
}

// ListReviews returns indexed reviews, newest first.
func (ix *Indexer) ListReviews(ctx context.Context, filter ReviewFilter) ([]ReviewRow, error) {
	stmt := ix.db.WithContext(ctx).Model(&ReviewRow{})
	if filter.Restaurant != "" {
		stmt = stmt.Where("restaurant = ?", filter.Restaurant)
	}
	if filter.Owner != "" {
		stmt = stmt.Where("owner = ?", filter.Owner)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("active = ?", true)
	}
	var rows []ReviewRow
	err := stmt.Order("id desc").Limit(clampLimit(filter.Limit)).Offset(filter.Offset).Find(&rows).Error
	return rows, err
}
