package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/curve-engine/internal/bondingcurve"
	"github.com/atmx/curve-engine/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Integer amounts are stored as NUMERIC(20,0) and exchanged as text so the
// full uint64 range round-trips exactly.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they don't exist. Safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tokenColumns = `id, mint, name, symbol, description, creator,
	virtual_sol_reserves::TEXT, virtual_token_reserves::TEXT,
	real_sol_reserves::TEXT, real_token_reserves::TEXT,
	is_graduated, graduation_threshold::TEXT,
	bonding_curve_supply::TEXT, total_supply::TEXT,
	version, created_at, graduated_at`

const tradeColumns = `id, token_id, user_id, side,
	amount_in::TEXT, amount_out::TEXT, platform_fee::TEXT, creator_fee::TEXT,
	price::TEXT, average_price::TEXT, price_impact::TEXT, timestamp`

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func (s *PostgresStore) CreateToken(ctx context.Context, t *model.Token) error {
	if t.Version == 0 {
		t.Version = 1
	}
	r := t.Reserves
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tokens (id, mint, name, symbol, description, creator,
		        virtual_sol_reserves, virtual_token_reserves, real_sol_reserves, real_token_reserves,
		        is_graduated, graduation_threshold, bonding_curve_supply, total_supply,
		        version, created_at, graduated_at)
		 VALUES ($1, $2, $3, $4, $5, $6,
		        $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		        $11, $12::NUMERIC, $13::NUMERIC, $14::NUMERIC,
		        $15, $16, $17)`,
		t.ID, t.Mint, t.Name, t.Symbol, t.Description, t.Creator,
		u64(r.VirtualSolReserves), u64(r.VirtualTokenReserves), u64(r.RealSolReserves), u64(r.RealTokenReserves),
		r.IsGraduated, u64(r.GraduationThreshold), u64(r.BondingCurveSupply), u64(r.TotalSupply),
		t.Version, t.CreatedAt, t.GraduatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("token %s: %w", t.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create token %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetToken(ctx context.Context, id string) (*model.Token, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) GetTokenByMint(ctx context.Context, mint string) (*model.Token, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE mint = $1`, mint)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mint %s: %w", mint, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get token by mint %s: %w", mint, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func (s *PostgresStore) UpdateReserves(ctx context.Context, id string, expectedVersion int64, state bondingcurve.ReserveState) (*model.Token, error) {
	return updateReserves(ctx, s.pool, id, expectedVersion, state)
}

// updateReserves is a compare-and-swap on version. When no row matches it
// distinguishes a missing token from a stale version.
func updateReserves(ctx context.Context, q querier, id string, expectedVersion int64, r bondingcurve.ReserveState) (*model.Token, error) {
	row := q.QueryRow(ctx,
		`UPDATE tokens
		 SET virtual_sol_reserves = $3::NUMERIC, virtual_token_reserves = $4::NUMERIC,
		     real_sol_reserves = $5::NUMERIC, real_token_reserves = $6::NUMERIC,
		     is_graduated = $7, graduation_threshold = $8::NUMERIC,
		     bonding_curve_supply = $9::NUMERIC, total_supply = $10::NUMERIC,
		     version = version + 1,
		     graduated_at = CASE WHEN $7 AND graduated_at IS NULL THEN NOW() ELSE graduated_at END
		 WHERE id = $1 AND version = $2
		 RETURNING `+tokenColumns,
		id, expectedVersion,
		u64(r.VirtualSolReserves), u64(r.VirtualTokenReserves), u64(r.RealSolReserves), u64(r.RealTokenReserves),
		r.IsGraduated, u64(r.GraduationThreshold), u64(r.BondingCurveSupply), u64(r.TotalSupply),
	)
	t, err := scanToken(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update reserves %s: %w", id, err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("update reserves %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	return nil, fmt.Errorf("token %s, expected version %d: %w", id, expectedVersion, ErrStateConflict)
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return insertTrade(ctx, s.pool, t)
}

func insertTrade(ctx context.Context, q querier, t *model.Trade) error {
	_, err := q.Exec(ctx,
		`INSERT INTO trades (id, token_id, user_id, side, amount_in, amount_out,
		        platform_fee, creator_fee, price, average_price, price_impact, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC,
		        $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
		t.ID, t.TokenID, t.UserID, string(t.Side), u64(t.AmountIn), u64(t.AmountOut),
		u64(t.PlatformFee), u64(t.CreatorFee),
		t.Price.String(), t.AveragePrice.String(), t.PriceImpact.String(),
		t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordTrade(ctx context.Context, expectedVersion int64, state bondingcurve.ReserveState, trade *model.Trade) (*model.Token, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	t, err := updateReserves(ctx, tx, trade.TokenID, expectedVersion, state)
	if err != nil {
		return nil, err
	}
	if err := insertTrade(ctx, tx, trade); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit trade %s: %w", trade.ID, err)
	}
	return t, nil
}

func (s *PostgresStore) GetTradesByToken(ctx context.Context, tokenID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE token_id = $1 ORDER BY timestamp, id`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE user_id = $1 ORDER BY timestamp, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) GetUserHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token_id,
		        COALESCE(SUM(CASE WHEN side = 'buy' THEN amount_out ELSE -amount_in END), 0)::TEXT,
		        COALESCE(SUM(CASE WHEN side = 'buy' THEN amount_in ELSE 0 END), 0)::TEXT,
		        COALESCE(SUM(CASE WHEN side = 'sell' THEN amount_out ELSE 0 END), 0)::TEXT
		 FROM trades
		 WHERE user_id = $1
		 GROUP BY token_id
		 ORDER BY token_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h := model.Holding{UserID: userID}
		var balance, spent, received string
		if err := rows.Scan(&h.TokenID, &balance, &spent, &received); err != nil {
			return nil, err
		}
		if h.Balance, err = strconv.ParseUint(balance, 10, 64); err != nil {
			return nil, fmt.Errorf("holding %s balance %q: %w", h.TokenID, balance, err)
		}
		if h.SolSpent, err = strconv.ParseUint(spent, 10, 64); err != nil {
			return nil, fmt.Errorf("holding %s spent %q: %w", h.TokenID, spent, err)
		}
		if h.SolReceived, err = strconv.ParseUint(received, 10, 64); err != nil {
			return nil, fmt.Errorf("holding %s received %q: %w", h.TokenID, received, err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) GetFeeTotals(ctx context.Context, tokenID string) (model.FeeTotals, error) {
	totals := model.FeeTotals{TokenID: tokenID}
	var platform, creator string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(tr.platform_fee), 0)::TEXT,
		        COALESCE(SUM(tr.creator_fee), 0)::TEXT,
		        COUNT(tr.id)
		 FROM tokens t
		 LEFT JOIN trades tr ON tr.token_id = t.id
		 WHERE t.id = $1
		 GROUP BY t.id`, tokenID).
		Scan(&platform, &creator, &totals.TradeCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return totals, fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	if err != nil {
		return totals, fmt.Errorf("fee totals %s: %w", tokenID, err)
	}
	if totals.PlatformFee, err = strconv.ParseUint(platform, 10, 64); err != nil {
		return totals, err
	}
	if totals.CreatorFee, err = strconv.ParseUint(creator, 10, 64); err != nil {
		return totals, err
	}
	return totals, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*model.Token, error) {
	var t model.Token
	var vSol, vTok, rSol, rTok, threshold, curveSupply, supply string
	var graduatedAt *time.Time

	if err := row.Scan(&t.ID, &t.Mint, &t.Name, &t.Symbol, &t.Description, &t.Creator,
		&vSol, &vTok, &rSol, &rTok,
		&t.Reserves.IsGraduated, &threshold, &curveSupply, &supply,
		&t.Version, &t.CreatedAt, &graduatedAt); err != nil {
		return nil, err
	}

	fields := []struct {
		text string
		dst  *uint64
	}{
		{vSol, &t.Reserves.VirtualSolReserves},
		{vTok, &t.Reserves.VirtualTokenReserves},
		{rSol, &t.Reserves.RealSolReserves},
		{rTok, &t.Reserves.RealTokenReserves},
		{threshold, &t.Reserves.GraduationThreshold},
		{curveSupply, &t.Reserves.BondingCurveSupply},
		{supply, &t.Reserves.TotalSupply},
	}
	for _, f := range fields {
		v, err := strconv.ParseUint(f.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token %s: reserve %q: %w", t.ID, f.text, err)
		}
		*f.dst = v
	}
	t.GraduatedAt = graduatedAt
	return &t, nil
}

// pgxRows is the subset of pgx.Rows scanTrades needs.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, in, out, platform, creator, price, avg, impact string

		if err := rows.Scan(&t.ID, &t.TokenID, &t.UserID, &side,
			&in, &out, &platform, &creator,
			&price, &avg, &impact, &t.Timestamp); err != nil {
			return nil, err
		}

		var err error
		if t.Side, err = bondingcurve.ParseSide(side); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			text string
			dst  *uint64
		}{{in, &t.AmountIn}, {out, &t.AmountOut}, {platform, &t.PlatformFee}, {creator, &t.CreatorFee}} {
			if *f.dst, err = strconv.ParseUint(f.text, 10, 64); err != nil {
				return nil, fmt.Errorf("trade %s: amount %q: %w", t.ID, f.text, err)
			}
		}
		for _, f := range []struct {
			name string
			text string
			dst  *decimal.Decimal
		}{{"price", price, &t.Price}, {"average price", avg, &t.AveragePrice}, {"price impact", impact, &t.PriceImpact}} {
			if *f.dst, err = decimal.NewFromString(f.text); err != nil {
				return nil, fmt.Errorf("trade %s: %s %q: %w", t.ID, f.name, f.text, err)
			}
		}

		trades = append(trades, t)
	}
	return trades, rows.Err()
}
