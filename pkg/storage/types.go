package storage

import "time"

// Entry is one stored plan snapshot of a product.
type Entry struct {
	// Product info
	StoreURL  string `json:"store_url"`
	Handle    string `json:"handle"`
	ProductID string `json:"product_id"`

	// Plan info
	PlanID          string `json:"plan_id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Interval        string `json:"interval"`
	IntervalCount   int    `json:"interval_count"`
	AdjustmentKind  string `json:"adjustment_kind"`
	AdjustmentValue string `json:"adjustment_value"`

	// Prices in minor units
	BasePrice       int64 `json:"base_price"`
	DiscountedPrice int64 `json:"discounted_price"`
	SavingsPercent  int   `json:"savings_percent"`
	Quantity        int   `json:"quantity"`

	LastSeenAt time.Time `json:"last_seen_at"`
}

// Change captures a single plan change for auditing or printing.
type Change struct {
	OccurredAt time.Time `json:"occurred_at"`

	StoreURL string `json:"store_url"`
	Handle   string `json:"handle"`

	PlanID     string `json:"plan_id"`
	PlanName   string `json:"plan_name"`
	ChangeType string `json:"change_type"` // added | updated | removed
	// Detail describes an update, e.g. "price 6500 -> 5500".
	Detail string `json:"detail,omitempty"`
}
