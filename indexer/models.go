package indexer

import "time"

// PaymentRow is the SQL projection of a settled payment. Amounts are base
// unit integers rendered as strings.
type PaymentRow struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement:false"`
	Customer         string `gorm:"index;size:42"`
	Restaurant       string `gorm:"index;size:42"`
	Amount           string
	Fee              string
	RestaurantAmount string
	Sequence         uint64 `gorm:"uniqueIndex"`
	SettledAt        time.Time
}

func (PaymentRow) TableName() string { return "payments" }

// ReviewRow projects a review and the running totals of its moderation and
// tips.
type ReviewRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Reviewer   string `gorm:"index;size:42"`
	Owner      string `gorm:"index;size:42"`
	Restaurant string `gorm:"index;size:42"`
	BillID     uint64 `gorm:"uniqueIndex"`
	Rating     uint8
	Active     bool
	TotalTips  string
	Reports    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ReviewRow) TableName() string { return "reviews" }

type TipRow struct {
	ID       uint   `gorm:"primaryKey"`
	ReviewID uint64 `gorm:"index"`
	Tipper   string `gorm:"index;size:42"`
	Amount   string
	Sequence uint64 `gorm:"uniqueIndex"`
	TippedAt time.Time
}

func (TipRow) TableName() string { return "review_tips" }

type ReportRow struct {
	ID         uint   `gorm:"primaryKey"`
	ReviewID   uint64 `gorm:"index"`
	Reporter   string `gorm:"size:42"`
	Reason     string
	Sequence   uint64 `gorm:"uniqueIndex"`
	ReportedAt time.Time
}

func (ReportRow) TableName() string { return "review_reports" }

// Cursor remembers the last applied bus sequence so a restart resumes from
// the retained backlog.
type Cursor struct {
	Name     string `gorm:"primaryKey"`
	Sequence uint64
}

func (Cursor) TableName() string { return "indexer_cursors" }

// PaymentFilter narrows ListPayments. Zero values match everything.
type PaymentFilter struct {
	Customer   string
	Restaurant string
	Limit      int
	Offset     int
}

// ReviewFilter narrows ListReviews. Zero values match everything.
type ReviewFilter struct {
	Restaurant string
	Owner      string
	ActiveOnly bool
	Limit      int
	Offset     int
}
