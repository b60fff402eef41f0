package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stockgame/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. Money and quantities are
// NUMERIC and cross the driver as text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "22P02":
			// Every id column is a uuid; a malformed id cannot name a row.
			return ErrNotFound
		}
	}
	return err
}

func aggregateTable(res model.Resolution) (string, error) {
	switch res {
	case model.ResolutionRaw:
		return "historical_aggregate_positions", nil
	case model.ResolutionMinute:
		return "historical_aggregate_positions_minute", nil
	case model.ResolutionHour:
		return "historical_aggregate_positions_hour", nil
	case model.ResolutionDay:
		return "historical_aggregate_positions_day", nil
	}
	return "", fmt.Errorf("unknown resolution %q", res)
}

func costBasisTable(kind model.CostBasisKind) (string, error) {
	switch kind {
	case model.CostBasisTotal:
		return "cost_basis_total", nil
	case model.CostBasisToday:
		return "cost_basis_today", nil
	}
	return "", fmt.Errorf("unknown cost basis kind %q", kind)
}

const gameColumns = `id::TEXT, name, invite_code, default_buying_power::TEXT, start_at, end_at, status, created_by, created_at`

func scanGame(row pgx.Row) (*model.Game, error) {
	var g model.Game
	var bp, status string
	if err := row.Scan(&g.ID, &g.Name, &g.InviteCode, &bp, &g.StartAt, &g.EndAt, &status, &g.CreatedBy, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.DefaultBuyingPower = dec(bp)
	g.Status = model.GameStatus(status)
	return &g, nil
}

const playerColumns = `id::TEXT, game_id::TEXT, user_id, display_name, buying_power::TEXT, is_game_admin, created_at`

func scanPlayer(row pgx.Row) (*model.Player, error) {
	var p model.Player
	var bp string
	if err := row.Scan(&p.ID, &p.GameID, &p.UserID, &p.DisplayName, &bp, &p.IsGameAdmin, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.BuyingPower = dec(bp)
	return &p, nil
}

func insertPlayer(ctx context.Context, q querier, p *model.Player) error {
	_, err := q.Exec(ctx, `
		INSERT INTO players (id, game_id, user_id, display_name, buying_power, is_game_admin, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)
	`, p.ID, p.GameID, p.UserID, p.DisplayName, p.BuyingPower.String(), p.IsGameAdmin, p.CreatedAt)
	return mapErr(err)
}

func (s *PostgresStore) CreateGame(ctx context.Context, g *model.Game, admin *model.Player) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO games (id, name, invite_code, default_buying_power, start_at, end_at, status, created_by, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, $9)
	`, g.ID, g.Name, g.InviteCode, g.DefaultBuyingPower.String(), g.StartAt, g.EndAt, string(g.Status), g.CreatedBy, g.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	if admin != nil {
		if err := insertPlayer(ctx, tx, admin); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return g, nil
}

func (s *PostgresStore) GetGameByInviteCode(ctx context.Context, code string) (*model.Game, error) {
	g, err := scanGame(s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE upper(invite_code) = upper($1)`, code))
	if err != nil {
		return nil, mapErr(err)
	}
	return g, nil
}

func (s *PostgresStore) ListGamesForUser(ctx context.Context, userID string) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id::TEXT, g.name, g.invite_code, g.default_buying_power::TEXT, g.start_at, g.end_at, g.status, g.created_by, g.created_at
		FROM games g
		JOIN players p ON p.game_id = g.id
		WHERE p.user_id = $1
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateGameStatus(ctx context.Context, id string, from, to model.GameStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE games SET status = $3 WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AddPlayer(ctx context.Context, p *model.Player) error {
	return insertPlayer(ctx, s.pool, p)
}

func (s *PostgresStore) GetPlayer(ctx context.Context, gameID, userID string) (*model.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE game_id = $1 AND user_id = $2`, gameID, userID))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *PostgresStore) GetPlayerByID(ctx context.Context, id string) (*model.Player, error) {
	p, err := scanPlayer(s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *PostgresStore) ListPlayers(ctx context.Context, gameID string) ([]model.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeletePlayer(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertStock(ctx context.Context, stock *model.Stock) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO stocks (id, ticker, name, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker) DO UPDATE SET name = EXCLUDED.name, image = EXCLUDED.image
		RETURNING id::TEXT
	`, stock.ID, stock.Ticker, stock.Name, stock.Image).Scan(&stock.ID)
}

const stockColumns = `id::TEXT, ticker, name, image`

func (s *PostgresStore) GetStock(ctx context.Context, id string) (*model.Stock, error) {
	var st model.Stock
	err := s.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = $1`, id).
		Scan(&st.ID, &st.Ticker, &st.Name, &st.Image)
	if err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

func (s *PostgresStore) GetStockByTicker(ctx context.Context, ticker string) (*model.Stock, error) {
	var st model.Stock
	err := s.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE upper(ticker) = upper($1)`, ticker).
		Scan(&st.ID, &st.Ticker, &st.Name, &st.Image)
	if err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

func (s *PostgresStore) ListStocks(ctx context.Context) ([]model.Stock, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Stock
	for rows.Next() {
		var st model.Stock
		if err := rows.Scan(&st.ID, &st.Ticker, &st.Name, &st.Image); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HeldTickers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT s.ticker
		FROM positions p
		JOIN stocks s ON s.id = p.stock_id
		ORDER BY s.ticker
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPositions(ctx context.Context, playerID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_id::TEXT, stock_id::TEXT, quantity::TEXT, created_at, updated_at
		FROM positions
		WHERE player_id = $1
		ORDER BY created_at
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var qty string
	if err := row.Scan(&p.PlayerID, &p.StockID, &qty, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Quantity = dec(qty)
	return &p, nil
}

func (s *PostgresStore) GetCostBasis(ctx context.Context, kind model.CostBasisKind, playerID, stockID string) (*model.CostBasis, error) {
	return getCostBasis(ctx, s.pool, kind, playerID, stockID, false)
}

func getCostBasis(ctx context.Context, q querier, kind model.CostBasisKind, playerID, stockID string, forUpdate bool) (*model.CostBasis, error) {
	table, err := costBasisTable(kind)
	if err != nil {
		return nil, err
	}
	sql := `SELECT player_id::TEXT, stock_id::TEXT, avg_price::TEXT, num_buys::TEXT, updated_at FROM ` + table +
		` WHERE player_id = $1 AND stock_id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var cb model.CostBasis
	var avg, n string
	err = q.QueryRow(ctx, sql, playerID, stockID).Scan(&cb.PlayerID, &cb.StockID, &avg, &n, &cb.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	cb.AvgPrice = dec(avg)
	cb.NumBuys = dec(n)
	return &cb, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, playerID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::TEXT, game_id::TEXT, player_id::TEXT, stock_id::TEXT, type, status,
		       quantity::TEXT, price::TEXT, value::TEXT, created_at
		FROM order_history
		WHERE player_id = $1
		ORDER BY created_at DESC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var o model.Order
		var typ, status, qty, price, value string
		if err := rows.Scan(&o.ID, &o.GameID, &o.PlayerID, &o.StockID, &typ, &status, &qty, &price, &value, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Type = model.OrderType(typ)
		o.Status = model.OrderStatus(status)
		o.Quantity = dec(qty)
		o.Price = dec(price)
		o.Value = dec(value)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListHistoricalPositions(ctx context.Context, playerID, stockID string, since time.Time) ([]model.HistoricalPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::TEXT, player_id::TEXT, stock_id::TEXT, value, stock_price, created_at
		FROM historical_positions
		WHERE player_id = $1 AND ($2 = '' OR stock_id::TEXT = $2) AND created_at >= $3
		ORDER BY created_at
	`, playerID, stockID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoricalPosition
	for rows.Next() {
		var h model.HistoricalPosition
		if err := rows.Scan(&h.ID, &h.PlayerID, &h.StockID, &h.ValueMilli, &h.PriceMilli, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAggregatePositions(ctx context.Context, res model.Resolution, playerID string, since time.Time) ([]model.AggregatePosition, error) {
	table, err := aggregateTable(res)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::TEXT, player_id::TEXT, value::TEXT, created_at
		FROM `+table+`
		WHERE player_id = $1 AND created_at >= $2
		ORDER BY created_at
	`, playerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AggregatePosition
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAggregate(row pgx.Row) (*model.AggregatePosition, error) {
	var a model.AggregatePosition
	var v string
	if err := row.Scan(&a.ID, &a.PlayerID, &v, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Value = dec(v)
	return &a, nil
}

func (s *PostgresStore) LatestAggregatePosition(ctx context.Context, res model.Resolution, playerID string) (*model.AggregatePosition, error) {
	return latestAggregatePosition(ctx, s.pool, res, playerID)
}

func latestAggregatePosition(ctx context.Context, q querier, res model.Resolution, playerID string) (*model.AggregatePosition, error) {
	table, err := aggregateTable(res)
	if err != nil {
		return nil, err
	}
	a, err := scanAggregate(q.QueryRow(ctx, `
		SELECT id::TEXT, player_id::TEXT, value::TEXT, created_at
		FROM `+table+`
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, playerID))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

type pgTx struct {
	q querier
}

func (t *pgTx) LockPlayer(ctx context.Context, gameID, userID string) (*model.Player, error) {
	p, err := scanPlayer(t.q.QueryRow(ctx, `
		SELECT `+playerColumns+`
		FROM players
		WHERE game_id = $1 AND user_id = $2
		FOR UPDATE
	`, gameID, userID))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (t *pgTx) SetBuyingPower(ctx context.Context, playerID string, bp decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `UPDATE players SET buying_power = $2::NUMERIC WHERE id = $1`, playerID, bp.String())
	return err
}

func (t *pgTx) GetPosition(ctx context.Context, playerID, stockID string) (*model.Position, error) {
	p, err := scanPosition(t.q.QueryRow(ctx, `
		SELECT player_id::TEXT, stock_id::TEXT, quantity::TEXT, created_at, updated_at
		FROM positions
		WHERE player_id = $1 AND stock_id = $2
		FOR UPDATE
	`, playerID, stockID))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (t *pgTx) SavePosition(ctx context.Context, p *model.Position) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO positions (player_id, stock_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC, $4, $5)
		ON CONFLICT (player_id, stock_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`, p.PlayerID, p.StockID, p.Quantity.String(), p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *pgTx) DeletePosition(ctx context.Context, playerID, stockID string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM positions WHERE player_id = $1 AND stock_id = $2`, playerID, stockID)
	return err
}

func (t *pgTx) GetCostBasis(ctx context.Context, kind model.CostBasisKind, playerID, stockID string) (*model.CostBasis, error) {
	return getCostBasis(ctx, t.q, kind, playerID, stockID, true)
}

func (t *pgTx) SaveCostBasis(ctx context.Context, kind model.CostBasisKind, cb *model.CostBasis) error {
	table, err := costBasisTable(kind)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO `+table+` (player_id, stock_id, avg_price, num_buys, updated_at)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)
		ON CONFLICT (player_id, stock_id)
		DO UPDATE SET avg_price = EXCLUDED.avg_price, num_buys = EXCLUDED.num_buys, updated_at = EXCLUDED.updated_at
	`, cb.PlayerID, cb.StockID, cb.AvgPrice.String(), cb.NumBuys.String(), cb.UpdatedAt)
	return err
}

func (t *pgTx) DeleteCostBasis(ctx context.Context, playerID, stockID string) error {
	for _, table := range []string{"cost_basis_total", "cost_basis_today"} {
		if _, err := t.q.Exec(ctx, `DELETE FROM `+table+` WHERE player_id = $1 AND stock_id = $2`, playerID, stockID); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_history (id, game_id, player_id, stock_id, type, status, quantity, price, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)
	`, o.ID, o.GameID, o.PlayerID, o.StockID, string(o.Type), string(o.Status),
		o.Quantity.String(), o.Price.String(), o.Value.String(), o.CreatedAt)
	return err
}

func (t *pgTx) LatestHistoricalPosition(ctx context.Context, playerID, stockID string) (*model.HistoricalPosition, error) {
	var h model.HistoricalPosition
	err := t.q.QueryRow(ctx, `
		SELECT id::TEXT, player_id::TEXT, stock_id::TEXT, value, stock_price, created_at
		FROM historical_positions
		WHERE player_id = $1 AND stock_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, playerID, stockID).Scan(&h.ID, &h.PlayerID, &h.StockID, &h.ValueMilli, &h.PriceMilli, &h.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &h, nil
}

func (t *pgTx) InsertHistoricalPosition(ctx context.Context, h *model.HistoricalPosition) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO historical_positions (id, player_id, stock_id, value, stock_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.PlayerID, h.StockID, h.ValueMilli, h.PriceMilli, h.CreatedAt)
	return err
}

func (t *pgTx) LatestAggregatePosition(ctx context.Context, res model.Resolution, playerID string) (*model.AggregatePosition, error) {
	return latestAggregatePosition(ctx, t.q, res, playerID)
}

func (t *pgTx) HasAggregateBetween(ctx context.Context, res model.Resolution, playerID string, start, end time.Time) (bool, error) {
	table, err := aggregateTable(res)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM `+table+`
			WHERE player_id = $1 AND created_at >= $2 AND created_at < $3
		)
	`, playerID, start, end).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertAggregatePosition(ctx context.Context, res model.Resolution, a *model.AggregatePosition) error {
	table, err := aggregateTable(res)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO `+table+` (id, player_id, value, created_at)
		VALUES ($1, $2, $3::NUMERIC, $4)
	`, a.ID, a.PlayerID, a.Value.String(), a.CreatedAt)
	return err
}
