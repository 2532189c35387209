package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// Journal is the append-only record of committed pair operations.
type Journal struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the journal path is missing.
	ErrPathRequired = errors.New("journal path must be configured")
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Trade is one committed swap.
type Trade struct {
	ID             string    `json:"id"`
	Pair           string    `json:"pair"`
	Direction      string    `json:"direction"`
	InputResource  string    `json:"inputResource"`
	InputAmount    string    `json:"inputAmount"`
	OutputResource string    `json:"outputResource"`
	OutputAmount   string    `json:"outputAmount"`
	Fee            string    `json:"fee"`
	Legs           int       `json:"legs"`
	ShortageBefore string    `json:"shortageBefore"`
	ShortageAfter  string    `json:"shortageAfter"`
	P0             string    `json:"p0"`
	TargetRatio    string    `json:"targetRatio"`
	LastOutSpot    string    `json:"lastOutSpot"`
	ExecutedAt     time.Time `json:"executedAt"`
}

// Liquidity is one deposit, withdrawal or fee collection.
type Liquidity struct {
	ID         string    `json:"id"`
	Pair       string    `json:"pair"`
	Kind       string    `json:"kind"`
	Resource   string    `json:"resource"`
	Amount     string    `json:"amount"`
	Units      string    `json:"units"`
	ExecutedAt time.Time `json:"executedAt"`
}

// Liquidity kinds.
const (
	KindAdd     = "add"
	KindRemove  = "remove"
	KindCollect = "collect"
)

// Open initialises the journal using a sqlite-compatible DSN.
func Open(dsn string) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// sqlite allows one writer; the pool must not hand out a second.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal not configured")
	}
	return j.db.PingContext(ctx)
}

// RecordTrade appends a swap and returns its identifier.
func (j *Journal) RecordTrade(ctx context.Context, t Trade) (string, error) {
	if j == nil || j.db == nil {
		return "", fmt.Errorf("journal not configured")
	}
	if strings.TrimSpace(t.Pair) == "" {
		return "", fmt.Errorf("trade missing pair")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO trades(id, pair, direction, input_resource, input_amount, output_resource, output_amount,
            fee, legs, shortage_before, shortage_after, p0, target_ratio, last_out_spot, executed_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, t.ID, t.Pair, t.Direction, t.InputResource, t.InputAmount, t.OutputResource, t.OutputAmount,
		t.Fee, t.Legs, t.ShortageBefore, t.ShortageAfter, t.P0, t.TargetRatio, t.LastOutSpot, t.ExecutedAt.UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("insert trade: %w", err)
	}
	return t.ID, nil
}

const tradeColumns = `id, pair, direction, input_resource, input_amount, output_resource, output_amount,
            fee, legs, shortage_before, shortage_after, p0, target_ratio, last_out_spot, executed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner, extra ...any) (Trade, error) {
	var (
		t        Trade
		executed int64
	)
	dest := append([]any{&t.ID, &t.Pair, &t.Direction, &t.InputResource, &t.InputAmount, &t.OutputResource,
		&t.OutputAmount, &t.Fee, &t.Legs, &t.ShortageBefore, &t.ShortageAfter, &t.P0, &t.TargetRatio,
		&t.LastOutSpot, &executed}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Trade{}, fmt.Errorf("scan trade: %w", err)
	}
	t.ExecutedAt = time.Unix(executed, 0).UTC()
	return t, nil
}

// Trades returns the most recent swaps of a pair, newest first.
func (j *Journal) Trades(ctx context.Context, pair string, limit int) ([]Trade, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT `+tradeColumns+`
        FROM trades
        WHERE pair = ?
        ORDER BY seq DESC
        LIMIT ?
    `, pair, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// tradesAfter pages through a pair's trades in commit order starting after
// sequence number after. It returns the sequence of the last row read.
func (j *Journal) tradesAfter(ctx context.Context, pair string, after int64, limit int) ([]Trade, int64, error) {
	rows, err := j.db.QueryContext(ctx, `
        SELECT `+tradeColumns+`, seq
        FROM trades
        WHERE pair = ? AND seq > ?
        ORDER BY seq ASC
        LIMIT ?
    `, pair, after, limit)
	if err != nil {
		return nil, after, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	var (
		out  []Trade
		last = after
	)
	for rows.Next() {
		var seq int64
		t, err := scanTrade(rows, &seq)
		if err != nil {
			return nil, after, err
		}
		out = append(out, t)
		last = seq
	}
	return out, last, rows.Err()
}

// RecordLiquidity appends a liquidity entry and returns its identifier.
func (j *Journal) RecordLiquidity(ctx context.Context, l Liquidity) (string, error) {
	if j == nil || j.db == nil {
		return "", fmt.Errorf("journal not configured")
	}
	switch l.Kind {
	case KindAdd, KindRemove, KindCollect:
	default:
		return "", fmt.Errorf("unknown liquidity kind %q", l.Kind)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.ExecutedAt.IsZero() {
		l.ExecutedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO liquidity(id, pair, kind, resource, amount, units, executed_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)
    `, l.ID, l.Pair, l.Kind, l.Resource, l.Amount, l.Units, l.ExecutedAt.UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("insert liquidity: %w", err)
	}
	return l.ID, nil
}

// LiquidityEntries returns the most recent liquidity entries of a pair.
func (j *Journal) LiquidityEntries(ctx context.Context, pair string, limit int) ([]Liquidity, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, pair, kind, resource, amount, units, executed_at
        FROM liquidity
        WHERE pair = ?
        ORDER BY seq DESC
        LIMIT ?
    `, pair, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query liquidity: %w", err)
	}
	defer rows.Close()
	var out []Liquidity
	for rows.Next() {
		var (
			l        Liquidity
			executed int64
		)
		if err := rows.Scan(&l.ID, &l.Pair, &l.Kind, &l.Resource, &l.Amount, &l.Units, &executed); err != nil {
			return nil, fmt.Errorf("scan liquidity: %w", err)
		}
		l.ExecutedAt = time.Unix(executed, 0).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
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

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    pair TEXT NOT NULL,
    direction TEXT NOT NULL,
    input_resource TEXT NOT NULL,
    input_amount TEXT NOT NULL,
    output_resource TEXT NOT NULL,
    output_amount TEXT NOT NULL,
    fee TEXT NOT NULL,
    legs INTEGER NOT NULL,
    shortage_before TEXT NOT NULL,
    shortage_after TEXT NOT NULL,
    p0 TEXT NOT NULL,
    target_ratio TEXT NOT NULL,
    last_out_spot TEXT NOT NULL,
    executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair, seq);

CREATE TABLE IF NOT EXISTS liquidity (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    pair TEXT NOT NULL,
    kind TEXT NOT NULL,
    resource TEXT NOT NULL,
    amount TEXT NOT NULL,
    units TEXT NOT NULL,
    executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_liquidity_pair ON liquidity(pair, seq);
`
