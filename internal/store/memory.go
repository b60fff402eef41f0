package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/model"
)

type posKey struct {
	playerID string
	stockID  string
}

type memState struct {
	games      map[string]model.Game
	players    map[string]model.Player
	stocks     map[string]model.Stock
	positions  map[posKey]model.Position
	costBasis  map[model.CostBasisKind]map[posKey]model.CostBasis
	orders     []model.Order
	historical []model.HistoricalPosition
	aggregates map[model.Resolution][]model.AggregatePosition
}

func newMemState() *memState {
	return &memState{
		games:     map[string]model.Game{},
		players:   map[string]model.Player{},
		stocks:    map[string]model.Stock{},
		positions: map[posKey]model.Position{},
		costBasis: map[model.CostBasisKind]map[posKey]model.CostBasis{
			model.CostBasisTotal: {},
			model.CostBasisToday: {},
		},
		aggregates: map[model.Resolution][]model.AggregatePosition{},
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		games:      maps.Clone(st.games),
		players:    maps.Clone(st.players),
		stocks:     maps.Clone(st.stocks),
		positions:  maps.Clone(st.positions),
		costBasis:  map[model.CostBasisKind]map[posKey]model.CostBasis{},
		orders:     slices.Clone(st.orders),
		historical: slices.Clone(st.historical),
		aggregates: map[model.Resolution][]model.AggregatePosition{},
	}
	for k, m := range st.costBasis {
		c.costBasis[k] = maps.Clone(m)
	}
	for k, rows := range st.aggregates {
		c.aggregates[k] = slices.Clone(rows)
	}
	return c
}

// MemoryStore implements Store in process memory. Transactions run against
// a private copy of the state that replaces the committed state on success,
// and are serialized with every other write.
type MemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) write(fn func(st *memState) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *MemoryStore) read(fn func(st *memState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

func (s *MemoryStore) CreateGame(_ context.Context, g *model.Game, admin *model.Player) error {
	return s.write(func(st *memState) error {
		if _, ok := st.games[g.ID]; ok {
			return ErrConflict
		}
		for _, existing := range st.games {
			if existing.InviteCode == g.InviteCode {
				return ErrConflict
			}
		}
		st.games[g.ID] = *g
		if admin != nil {
			st.players[admin.ID] = *admin
		}
		return nil
	})
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*model.Game, error) {
	var (
		g  model.Game
		ok bool
	)
	s.read(func(st *memState) { g, ok = st.games[id] })
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (s *MemoryStore) GetGameByInviteCode(_ context.Context, code string) (*model.Game, error) {
	var found *model.Game
	s.read(func(st *memState) {
		for _, g := range st.games {
			if strings.EqualFold(g.InviteCode, code) {
				found = &g
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListGamesForUser(_ context.Context, userID string) ([]model.Game, error) {
	var out []model.Game
	s.read(func(st *memState) {
		for _, p := range st.players {
			if p.UserID != userID {
				continue
			}
			if g, ok := st.games[p.GameID]; ok {
				out = append(out, g)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateGameStatus(_ context.Context, id string, from, to model.GameStatus) (bool, error) {
	changed := false
	err := s.write(func(st *memState) error {
		g, ok := st.games[id]
		if !ok {
			return ErrNotFound
		}
		if g.Status != from {
			return nil
		}
		g.Status = to
		st.games[id] = g
		changed = true
		return nil
	})
	return changed, err
}

func (s *MemoryStore) AddPlayer(_ context.Context, p *model.Player) error {
	return s.write(func(st *memState) error {
		for _, existing := range st.players {
			if existing.GameID == p.GameID && existing.UserID == p.UserID {
				return ErrConflict
			}
		}
		st.players[p.ID] = *p
		return nil
	})
}

func (s *MemoryStore) GetPlayer(_ context.Context, gameID, userID string) (*model.Player, error) {
	var found *model.Player
	s.read(func(st *memState) { found = findPlayer(st, gameID, userID) })
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func findPlayer(st *memState, gameID, userID string) *model.Player {
	for _, p := range st.players {
		if p.GameID == gameID && p.UserID == userID {
			return &p
		}
	}
	return nil
}

func (s *MemoryStore) GetPlayerByID(_ context.Context, id string) (*model.Player, error) {
	var (
		p  model.Player
		ok bool
	)
	s.read(func(st *memState) { p, ok = st.players[id] })
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListPlayers(_ context.Context, gameID string) ([]model.Player, error) {
	var out []model.Player
	s.read(func(st *memState) {
		for _, p := range st.players {
			if p.GameID == gameID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeletePlayer(_ context.Context, id string) error {
	return s.write(func(st *memState) error {
		if _, ok := st.players[id]; !ok {
			return ErrNotFound
		}
		delete(st.players, id)
		for k := range st.positions {
			if k.playerID == id {
				delete(st.positions, k)
			}
		}
		for _, m := range st.costBasis {
			for k := range m {
				if k.playerID == id {
					delete(m, k)
				}
			}
		}
		st.orders = slices.DeleteFunc(st.orders, func(o model.Order) bool { return o.PlayerID == id })
		st.historical = slices.DeleteFunc(st.historical, func(h model.HistoricalPosition) bool { return h.PlayerID == id })
		for res, rows := range st.aggregates {
			st.aggregates[res] = slices.DeleteFunc(rows, func(a model.AggregatePosition) bool { return a.PlayerID == id })
		}
		return nil
	})
}

func (s *MemoryStore) UpsertStock(_ context.Context, stock *model.Stock) error {
	return s.write(func(st *memState) error {
		for id, existing := range st.stocks {
			if strings.EqualFold(existing.Ticker, stock.Ticker) && id != stock.ID {
				stock.ID = id
			}
		}
		st.stocks[stock.ID] = *stock
		return nil
	})
}

func (s *MemoryStore) GetStock(_ context.Context, id string) (*model.Stock, error) {
	var (
		stock model.Stock
		ok    bool
	)
	s.read(func(st *memState) { stock, ok = st.stocks[id] })
	if !ok {
		return nil, ErrNotFound
	}
	return &stock, nil
}

func (s *MemoryStore) GetStockByTicker(_ context.Context, ticker string) (*model.Stock, error) {
	var found *model.Stock
	s.read(func(st *memState) {
		for _, stock := range st.stocks {
			if strings.EqualFold(stock.Ticker, ticker) {
				found = &stock
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListStocks(_ context.Context) ([]model.Stock, error) {
	var out []model.Stock
	s.read(func(st *memState) {
		out = slices.Collect(maps.Values(st.stocks))
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *MemoryStore) HeldTickers(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	s.read(func(st *memState) {
		for k, p := range st.positions {
			if !p.Quantity.IsPositive() {
				continue
			}
			if stock, ok := st.stocks[k.stockID]; ok {
				seen[stock.Ticker] = struct{}{}
			}
		}
	})
	out := slices.Collect(maps.Keys(seen))
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, playerID string) ([]model.Position, error) {
	var out []model.Position
	s.read(func(st *memState) {
		for k, p := range st.positions {
			if k.playerID == playerID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetCostBasis(_ context.Context, kind model.CostBasisKind, playerID, stockID string) (*model.CostBasis, error) {
	var (
		cb model.CostBasis
		ok bool
	)
	s.read(func(st *memState) { cb, ok = st.costBasis[kind][posKey{playerID, stockID}] })
	if !ok {
		return nil, ErrNotFound
	}
	return &cb, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, playerID string) ([]model.Order, error) {
	var out []model.Order
	s.read(func(st *memState) {
		for _, o := range st.orders {
			if o.PlayerID == playerID {
				out = append(out, o)
			}
		}
	})
	slices.Reverse(out)
	return out, nil
}

func (s *MemoryStore) ListHistoricalPositions(_ context.Context, playerID, stockID string, since time.Time) ([]model.HistoricalPosition, error) {
	var out []model.HistoricalPosition
	s.read(func(st *memState) {
		for _, h := range st.historical {
			if h.PlayerID != playerID || (stockID != "" && h.StockID != stockID) || h.CreatedAt.Before(since) {
				continue
			}
			out = append(out, h)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListAggregatePositions(_ context.Context, res model.Resolution, playerID string, since time.Time) ([]model.AggregatePosition, error) {
	var out []model.AggregatePosition
	s.read(func(st *memState) {
		for _, a := range st.aggregates[res] {
			if a.PlayerID == playerID && !a.CreatedAt.Before(since) {
				out = append(out, a)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) LatestAggregatePosition(_ context.Context, res model.Resolution, playerID string) (*model.AggregatePosition, error) {
	var found *model.AggregatePosition
	s.read(func(st *memState) { found = latestAggregate(st, res, playerID) })
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func latestAggregate(st *memState, res model.Resolution, playerID string) *model.AggregatePosition {
	var found *model.AggregatePosition
	for _, a := range st.aggregates[res] {
		if a.PlayerID != playerID {
			continue
		}
		if found == nil || !a.CreatedAt.Before(found.CreatedAt) {
			found = &a
		}
	}
	return found
}

type memTx struct {
	st *memState
}

func (t *memTx) LockPlayer(_ context.Context, gameID, userID string) (*model.Player, error) {
	p := findPlayer(t.st, gameID, userID)
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (t *memTx) SetBuyingPower(_ context.Context, playerID string, bp decimal.Decimal) error {
	p, ok := t.st.players[playerID]
	if !ok {
		return ErrNotFound
	}
	p.BuyingPower = bp
	t.st.players[playerID] = p
	return nil
}

func (t *memTx) GetPosition(_ context.Context, playerID, stockID string) (*model.Position, error) {
	p, ok := t.st.positions[posKey{playerID, stockID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) SavePosition(_ context.Context, p *model.Position) error {
	t.st.positions[posKey{p.PlayerID, p.StockID}] = *p
	return nil
}

func (t *memTx) DeletePosition(_ context.Context, playerID, stockID string) error {
	delete(t.st.positions, posKey{playerID, stockID})
	return nil
}

func (t *memTx) GetCostBasis(_ context.Context, kind model.CostBasisKind, playerID, stockID string) (*model.CostBasis, error) {
	cb, ok := t.st.costBasis[kind][posKey{playerID, stockID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &cb, nil
}

func (t *memTx) SaveCostBasis(_ context.Context, kind model.CostBasisKind, cb *model.CostBasis) error {
	t.st.costBasis[kind][posKey{cb.PlayerID, cb.StockID}] = *cb
	return nil
}

func (t *memTx) DeleteCostBasis(_ context.Context, playerID, stockID string) error {
	for _, m := range t.st.costBasis {
		delete(m, posKey{playerID, stockID})
	}
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *model.Order) error {
	t.st.orders = append(t.st.orders, *o)
	return nil
}

func (t *memTx) LatestHistoricalPosition(_ context.Context, playerID, stockID string) (*model.HistoricalPosition, error) {
	var found *model.HistoricalPosition
	for _, h := range t.st.historical {
		if h.PlayerID != playerID || h.StockID != stockID {
			continue
		}
		if found == nil || !h.CreatedAt.Before(found.CreatedAt) {
			found = &h
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (t *memTx) InsertHistoricalPosition(_ context.Context, h *model.HistoricalPosition) error {
	t.st.historical = append(t.st.historical, *h)
	return nil
}

func (t *memTx) LatestAggregatePosition(_ context.Context, res model.Resolution, playerID string) (*model.AggregatePosition, error) {
	found := latestAggregate(t.st, res, playerID)
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (t *memTx) HasAggregateBetween(_ context.Context, res model.Resolution, playerID string, start, end time.Time) (bool, error) {
	for _, a := range t.st.aggregates[res] {
		if a.PlayerID == playerID && !a.CreatedAt.Before(start) && a.CreatedAt.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertAggregatePosition(_ context.Context, res model.Resolution, a *model.AggregatePosition) error {
	t.st.aggregates[res] = append(t.st.aggregates[res], *a)
	return nil
}
