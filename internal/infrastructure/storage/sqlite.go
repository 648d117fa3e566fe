package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_history (
    order_id         TEXT PRIMARY KEY,
    symbol           TEXT    NOT NULL,
    outcome          TEXT    NOT NULL DEFAULT '',
    side             TEXT    NOT NULL,
    order_type       TEXT    NOT NULL,
    quantity         REAL    NOT NULL,
    price            REAL    NOT NULL DEFAULT 0,
    status           TEXT    NOT NULL,
    filled_qty       REAL    NOT NULL DEFAULT 0,
    gateway_name     TEXT    NOT NULL,
    gateway_order_id TEXT    NOT NULL DEFAULT '',
    account_id       TEXT    NOT NULL,
    created_at       TEXT    NOT NULL,
    updated_at       TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS account_balances (
    account_id TEXT NOT NULL,
    asset      TEXT NOT NULL,
    balance    TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (account_id, asset)
);

CREATE TABLE IF NOT EXISTS event_records (
    event_id   TEXT PRIMARY KEY,
    event_name TEXT    NOT NULL,
    timestamp  TEXT    NOT NULL,
    data       TEXT    NOT NULL,
    important  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS large_orders (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id     TEXT    NOT NULL,
    symbol       TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    quantity     REAL    NOT NULL,
    price        REAL    NOT NULL DEFAULT 0,
    account_id   TEXT    NOT NULL,
    gateway_name TEXT    NOT NULL,
    timestamp    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_updated ON order_history(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_name    ON event_records(event_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_large_symbol   ON large_orders(symbol, timestamp DESC);
`

// 固定宽度的 UTC 时间格式，字符串比较即时间比较
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, _ := time.Parse(tsLayout, s)
	return t
}

// DataStore sqlite 落地：订单历史、账户余额、事件记录、大额订单
type DataStore struct {
	db *sql.DB
}

var _ ports.Persistence = (*DataStore)(nil)

// Open 打开（或创建）数据库；path 为 ":memory:" 时使用内存库
func Open(path string) (*DataStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite 单写
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.Open: apply schema: %w", err)
	}
	return &DataStore{db: db}, nil
}

func (s *DataStore) Close() error {
	return s.db.Close()
}

// SaveOrder 按 order_id upsert
func (s *DataStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("storage.SaveOrder: nil order")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_history (
			order_id, symbol, outcome, side, order_type, quantity, price, status, filled_qty,
			gateway_name, gateway_order_id, account_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status           = excluded.status,
			filled_qty       = excluded.filled_qty,
			gateway_order_id = excluded.gateway_order_id,
			updated_at       = excluded.updated_at`,
		o.OrderID, o.Instrument.Symbol, o.Outcome, string(o.Side), string(o.Type), o.Quantity, o.Price,
		string(o.Status), o.FilledQty, o.Instrument.GatewayName, o.GatewayOrderID, o.AccountID,
		ts(o.CreatedAt), ts(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: %s: %w", o.OrderID, err)
	}
	return nil
}

func (s *DataStore) SaveEvent(ctx context.Context, rec ports.EventRecord) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("storage.SaveEvent: marshal data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO event_records (event_id, event_name, timestamp, data, important)
		VALUES (?, ?, ?, ?, ?)`,
		rec.EventID, rec.EventName, ts(rec.Timestamp), string(data), boolToInt(rec.Important),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveEvent: %s: %w", rec.EventName, err)
	}
	return nil
}

func (s *DataStore) SaveLargeOrder(ctx context.Context, rec ports.LargeOrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO large_orders (order_id, symbol, side, quantity, price, account_id, gateway_name, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, rec.Symbol, string(rec.Side), rec.Quantity, rec.Price, rec.AccountID, rec.GatewayName,
		ts(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveLargeOrder: %s: %w", rec.OrderID, err)
	}
	return nil
}

func (s *DataStore) SaveAccountBalance(ctx context.Context, accountID, asset string, balance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_balances (account_id, asset, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, asset) DO UPDATE SET
			balance    = excluded.balance,
			updated_at = excluded.updated_at`,
		accountID, asset, balance.String(), ts(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAccountBalance: %s/%s: %w", accountID, asset, err)
	}
	return nil
}

// RecentOrders 最近更新的订单，最新在前
func (s *DataStore) RecentOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, symbol, outcome, side, order_type, quantity, price, status, filled_qty,
		       gateway_name, gateway_order_id, account_id, created_at, updated_at
		FROM order_history
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentOrders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o                 domain.Order
			side, typ, status string
			created, updated  string
		)
		if err := rows.Scan(&o.OrderID, &o.Instrument.Symbol, &o.Outcome, &side, &typ, &o.Quantity, &o.Price,
			&status, &o.FilledQty, &o.Instrument.GatewayName, &o.GatewayOrderID, &o.AccountID,
			&created, &updated); err != nil {
			return nil, fmt.Errorf("storage.RecentOrders: scan: %w", err)
		}
		o.Side = domain.OrderSide(side)
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		o.CreatedAt, o.UpdatedAt = parseTS(created), parseTS(updated)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Balances 账户已持久化的余额
func (s *DataStore) Balances(ctx context.Context, accountID string) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset, balance FROM account_balances WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("storage.Balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var asset, raw string
		if err := rows.Scan(&asset, &raw); err != nil {
			return nil, fmt.Errorf("storage.Balances: scan: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("storage.Balances: parse %s: %w", asset, err)
		}
		out[asset] = d
	}
	return out, rows.Err()
}

// Events 某事件的记录，最新在前
func (s *DataStore) Events(ctx context.Context, name string, limit int) ([]ports.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_name, timestamp, data, important
		FROM event_records
		WHERE event_name = ?
		ORDER BY timestamp DESC
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Events: %w", err)
	}
	defer rows.Close()

	var out []ports.EventRecord
	for rows.Next() {
		var (
			rec       ports.EventRecord
			at, raw   string
			important int
		)
		if err := rows.Scan(&rec.EventID, &rec.EventName, &at, &raw, &important); err != nil {
			return nil, fmt.Errorf("storage.Events: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Data); err != nil {
			return nil, fmt.Errorf("storage.Events: decode %s: %w", rec.EventID, err)
		}
		rec.Timestamp = parseTS(at)
		rec.Important = important != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LargeOrders 某标的 since 之后的大额订单，最新在前
func (s *DataStore) LargeOrders(ctx context.Context, symbol string, since time.Time) ([]ports.LargeOrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, symbol, side, quantity, price, account_id, gateway_name, timestamp
		FROM large_orders
		WHERE symbol = ? AND timestamp >= ?
		ORDER BY timestamp DESC`, symbol, ts(since))
	if err != nil {
		return nil, fmt.Errorf("storage.LargeOrders: %w", err)
	}
	defer rows.Close()

	var out []ports.LargeOrderRecord
	for rows.Next() {
		var (
			rec      ports.LargeOrderRecord
			side, at string
		)
		if err := rows.Scan(&rec.OrderID, &rec.Symbol, &side, &rec.Quantity, &rec.Price, &rec.AccountID,
			&rec.GatewayName, &at); err != nil {
			return nil, fmt.Errorf("storage.LargeOrders: scan: %w", err)
		}
		rec.Side = domain.OrderSide(side)
		rec.Timestamp = parseTS(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
