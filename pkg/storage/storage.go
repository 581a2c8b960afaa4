package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// ErrAbortingPlanWipe is returned when a snapshot would delete every stored
// plan of a product. A product losing all plans at once is far more often a
// broken fetch than a real change.
var ErrAbortingPlanWipe = errors.New("refusing to remove every plan of a product")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS plan_entries (
  id                INTEGER PRIMARY KEY,
  store_url         TEXT NOT NULL,
  handle            TEXT NOT NULL,
  product_id        TEXT,
  plan_id           TEXT NOT NULL,
  name              TEXT NOT NULL,
  description       TEXT,
  interval_unit     TEXT NOT NULL,
  interval_count    INTEGER NOT NULL CHECK (interval_count >= 1),
  adjustment_kind   TEXT NOT NULL,
  adjustment_value  TEXT NOT NULL,
  base_price        INTEGER NOT NULL CHECK (base_price >= 0),
  discounted_price  INTEGER NOT NULL CHECK (discounted_price >= 0),
  savings_percent   INTEGER NOT NULL,
  quantity          INTEGER NOT NULL,
  run_id            INTEGER NOT NULL DEFAULT 0,
  first_seen_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(store_url, handle, plan_id)
);
CREATE INDEX IF NOT EXISTS idx_plans_product ON plan_entries(store_url, handle);
CREATE TABLE IF NOT EXISTS plan_changes (
  id                INTEGER PRIMARY KEY,
  occurred_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  store_url         TEXT NOT NULL,
  handle            TEXT NOT NULL,
  plan_id           TEXT NOT NULL,
  plan_name         TEXT,
  change_type       TEXT NOT NULL CHECK (change_type IN ('added','updated','removed')),
  detail            TEXT
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON plan_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_product ON plan_changes(store_url, handle, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// UpsertProductPlans replaces the stored plans of one product with entries and
// returns what changed. Plans not present in entries are removed, unless that
// would remove all of them and allowWipe is false.
func (d *DB) UpsertProductPlans(ctx context.Context, storeURL, handle string, entries []Entry, allowWipe bool) (changes []Change, err error) {
	storeURL = NormalizeStoreURL(storeURL)
	if storeURL == "" || handle == "" {
		return nil, errors.New("invalid product identifiers")
	}
	now := time.Now().UTC()
	runID := time.Now().UnixNano()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `SELECT plan_id, name, description, interval_unit, interval_count, adjustment_kind, adjustment_value, base_price, discounted_price, quantity FROM plan_entries WHERE store_url = ? AND handle = ?`, storeURL, handle)
	if err != nil {
		return nil, err
	}
	existingMap := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var desc sql.NullString
		if err = rows.Scan(&e.PlanID, &e.Name, &desc, &e.Interval, &e.IntervalCount, &e.AdjustmentKind, &e.AdjustmentValue, &e.BasePrice, &e.DiscountedPrice, &e.Quantity); err != nil {
			rows.Close()
			return nil, err
		}
		e.Description = desc.String
		existingMap[identityKey(storeURL, handle, e.PlanID)] = e
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	if len(entries) == 0 && len(existingMap) > 0 && !allowWipe {
		err = fmt.Errorf("%w: %s/products/%s has %d stored plans", ErrAbortingPlanWipe, storeURL, handle, len(existingMap))
		return nil, err
	}

	for _, e := range entries {
		key := identityKey(storeURL, handle, e.PlanID)
		if key == "" {
			continue
		}
		ex, existed := existingMap[key]

		if !existed {
			_, err = tx.ExecContext(ctx, `INSERT INTO plan_entries(store_url, handle, product_id, plan_id, name, description, interval_unit, interval_count, adjustment_kind, adjustment_value, base_price, discounted_price, savings_percent, quantity, run_id, first_seen_at, last_seen_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
				storeURL, handle, nullIfEmpty(e.ProductID), e.PlanID, e.Name, nullIfEmpty(e.Description), e.Interval, e.IntervalCount, e.AdjustmentKind, e.AdjustmentValue, e.BasePrice, e.DiscountedPrice, e.SavingsPercent, e.Quantity, runID)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Change{OccurredAt: now, StoreURL: storeURL, Handle: handle, PlanID: e.PlanID, PlanName: e.Name, ChangeType: "added"})
			existingMap[key] = e // Track the new entry
			continue
		}

		if detail := diff(ex, e); detail != "" {
			_, err = tx.ExecContext(ctx, `UPDATE plan_entries SET product_id = ?, name = ?, description = ?, interval_unit = ?, interval_count = ?, adjustment_kind = ?, adjustment_value = ?, base_price = ?, discounted_price = ?, savings_percent = ?, quantity = ?, run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE store_url = ? AND handle = ? AND plan_id = ?`,
				nullIfEmpty(e.ProductID), e.Name, nullIfEmpty(e.Description), e.Interval, e.IntervalCount, e.AdjustmentKind, e.AdjustmentValue, e.BasePrice, e.DiscountedPrice, e.SavingsPercent, e.Quantity, runID, storeURL, handle, e.PlanID)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Change{OccurredAt: now, StoreURL: storeURL, Handle: handle, PlanID: e.PlanID, PlanName: e.Name, ChangeType: "updated", Detail: detail})
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE plan_entries SET run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE store_url = ? AND handle = ? AND plan_id = ?`, runID, storeURL, handle, e.PlanID)
			if err != nil {
				return nil, err
			}
		}
	}

	// Sweep: find and delete plans not touched in this run
	staleRows, err := tx.QueryContext(ctx, "SELECT plan_id, name FROM plan_entries WHERE store_url = ? AND handle = ? AND run_id != ?", storeURL, handle, runID)
	if err != nil {
		return nil, err
	}
	var removed []Change
	for staleRows.Next() {
		c := Change{OccurredAt: now, StoreURL: storeURL, Handle: handle, ChangeType: "removed"}
		if err = staleRows.Scan(&c.PlanID, &c.PlanName); err != nil {
			staleRows.Close()
			return nil, err
		}
		removed = append(removed, c)
	}
	if err = staleRows.Close(); err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM plan_entries WHERE store_url = ? AND handle = ? AND run_id != ?`, storeURL, handle, runID)
		if err != nil {
			return nil, err
		}
		changes = append(changes, removed...)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// LogChanges appends changes to the change log.
func (d *DB) LogChanges(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	for _, c := range changes {
		occurred := c.OccurredAt
		if occurred.IsZero() {
			occurred = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO plan_changes(occurred_at, store_url, handle, plan_id, plan_name, change_type, detail) VALUES(?,?,?,?,?,?,?)`,
			occurred.UTC().Format(sqliteTimeLayout), c.StoreURL, c.Handle, c.PlanID, nullIfEmpty(c.PlanName), c.ChangeType, nullIfEmpty(c.Detail)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ProductPlanCount returns how many plans are stored for a product.
func (d *DB) ProductPlanCount(ctx context.Context, storeURL, handle string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM plan_entries WHERE store_url = ? AND handle = ?", NormalizeStoreURL(storeURL), handle).Scan(&n)
	return n, err
}

// ListOptions controls selection when listing entries.
type ListOptions struct {
	StoreURL      string
	HandleFilter  string
	Since         time.Time
	IncludeNoDeal bool
}

// ListEntries returns current entries matching filters. Plans without any
// discount are skipped unless IncludeNoDeal is set.
func (d *DB) ListEntries(ctx context.Context, opts ListOptions) ([]Entry, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.StoreURL != "" {
		where += " AND store_url = ?"
		args = append(args, NormalizeStoreURL(opts.StoreURL))
	}
	if opts.HandleFilter != "" {
		where += " AND handle LIKE ?"
		args = append(args, fmt.Sprintf("%%%s%%", opts.HandleFilter))
	}
	if !opts.IncludeNoDeal {
		where += " AND adjustment_kind != 'none'"
	}
	if !opts.Since.IsZero() {
		where += " AND last_seen_at >= ?"
		args = append(args, opts.Since.UTC().Format(sqliteTimeLayout))
	}

	q := "SELECT store_url, handle, product_id, plan_id, name, description, interval_unit, interval_count, adjustment_kind, adjustment_value, base_price, discounted_price, savings_percent, quantity, last_seen_at FROM plan_entries " + where + " ORDER BY store_url, handle, interval_count, plan_id"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var productNS, descNS sql.NullString
		var lastSeen string
		if err := rows.Scan(&e.StoreURL, &e.Handle, &productNS, &e.PlanID, &e.Name, &descNS, &e.Interval, &e.IntervalCount, &e.AdjustmentKind, &e.AdjustmentValue, &e.BasePrice, &e.DiscountedPrice, &e.SavingsPercent, &e.Quantity, &lastSeen); err != nil {
			return nil, err
		}
		e.ProductID = productNS.String
		e.Description = descNS.String
		e.LastSeenAt = parseSQLiteTime(lastSeen)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecentChanges returns the most recent N changes across all products.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, store_url, handle, plan_id, plan_name, change_type, detail FROM plan_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAtStr string
		var nameNS, detailNS sql.NullString
		if err := rows.Scan(&occurredAtStr, &c.StoreURL, &c.Handle, &c.PlanID, &nameNS, &c.ChangeType, &detailNS); err != nil {
			return nil, err
		}
		c.OccurredAt = parseSQLiteTime(occurredAtStr)
		c.PlanName = nameNS.String
		c.Detail = detailNS.String
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

type StoreStats struct {
	// Store is the registrable domain, or the store URL when it has none.
	Store        string `json:"store"`
	ProductCount int    `json:"product_count"`
	PlanCount    int    `json:"plan_count"`
}

// GetStats counts products and plans per store, merging subdomains of the same
// registrable domain.
func (d *DB) GetStats(ctx context.Context) ([]StoreStats, error) {
	query := `
		SELECT
			store_url,
			COUNT(DISTINCT handle),
			COUNT(plan_id)
		FROM
			plan_entries
		GROUP BY
			store_url
		ORDER BY
			store_url;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	merged := make(map[string]*StoreStats)
	for rows.Next() {
		var storeURL string
		var products, planCount int
		if err := rows.Scan(&storeURL, &products, &planCount); err != nil {
			return nil, err
		}
		key := storeURL
		if domain, ok := StoreDomain(storeURL); ok {
			key = domain
		}
		s, ok := merged[key]
		if !ok {
			s = &StoreStats{Store: key}
			merged[key] = s
		}
		s.ProductCount += products
		s.PlanCount += planCount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]StoreStats, 0, len(merged))
	for _, s := range merged {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Store < stats[j].Store })
	return stats, nil
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// parseSQLiteTime accepts the CURRENT_TIMESTAMP format and RFC3339.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
