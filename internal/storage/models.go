package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures one dispatch attempt for auditing and reporting.
type AlertRecord struct {
	ID             int64
	Address        string
	Chain          string
	Balance        decimal.Decimal
	Threshold      decimal.Decimal
	SuggestedTopUp decimal.Decimal
	DeepLink       string
	Channels       []string
	Delivered      bool
	Error          *string
	Acknowledged   bool
	ObservedAt     time.Time
	CreatedAt      time.Time
}
