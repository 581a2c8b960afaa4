package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Product summarizes the stored plans of one product.
type Product struct {
	StoreURL   string    `json:"store_url"`
	Handle     string    `json:"handle"`
	ProductID  string    `json:"product_id,omitempty"`
	PlanCount  int       `json:"plan_count"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ListProducts returns every product with stored plans.
func (d *DB) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT store_url, handle, MAX(product_id), COUNT(*), MAX(last_seen_at)
		FROM plan_entries
		GROUP BY store_url, handle
		ORDER BY store_url, handle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		var productID sql.NullString
		var lastSeen string
		if err := rows.Scan(&p.StoreURL, &p.Handle, &productID, &p.PlanCount, &lastSeen); err != nil {
			return nil, err
		}
		p.ProductID = productID.String
		p.LastSeenAt = parseSQLiteTime(lastSeen)
		products = append(products, p)
	}
	return products, rows.Err()
}

// RemoveProduct deletes every stored plan of a product and returns the
// removals, which the caller may log.
func (d *DB) RemoveProduct(ctx context.Context, storeURL, handle string) ([]Change, error) {
	storeURL = NormalizeStoreURL(storeURL)
	rows, err := d.sql.QueryContext(ctx, "SELECT plan_id, name FROM plan_entries WHERE store_url = ? AND handle = ?", storeURL, handle)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var removed []Change
	for rows.Next() {
		c := Change{OccurredAt: now, StoreURL: storeURL, Handle: handle, ChangeType: "removed"}
		if err := rows.Scan(&c.PlanID, &c.PlanName); err != nil {
			rows.Close()
			return nil, err
		}
		removed = append(removed, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, fmt.Errorf("product not found")
	}

	if _, err := d.sql.ExecContext(ctx, "DELETE FROM plan_entries WHERE store_url = ? AND handle = ?", storeURL, handle); err != nil {
		return nil, err
	}
	return removed, nil
}
