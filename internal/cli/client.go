package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockgame/internal/auth"
	"stockgame/internal/game"
	"stockgame/internal/model"
	"stockgame/internal/orders"
	"stockgame/internal/series"
)

// APIError is a non-2xx response from the game API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type GameView struct {
	Game   model.Game   `json:"game"`
	Player model.Player `json:"player"`
}

type Position struct {
	StockID       string           `json:"stockId"`
	Ticker        string           `json:"ticker"`
	Name          string           `json:"name"`
	Image         string           `json:"image"`
	Quantity      decimal.Decimal  `json:"quantity"`
	AvgPrice      *decimal.Decimal `json:"avgPrice"`
	TodayAvgPrice *decimal.Decimal `json:"todayAvgPrice"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice"`
	MarketValue   *decimal.Decimal `json:"marketValue"`
}

type CreateGameRequest struct {
	Name               string           `json:"name"`
	StartAt            time.Time        `json:"startAt"`
	EndAt              time.Time        `json:"endAt"`
	DefaultBuyingPower *decimal.Decimal `json:"defaultBuyingPower,omitempty"`
	DisplayName        string           `json:"displayName,omitempty"`
}

func (c *Client) Signup(ctx context.Context, email, password, displayName string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	}, &out)
	return out, err
}

func (c *Client) ListStocks(ctx context.Context, accessToken string) ([]model.Stock, error) {
	var out struct {
		Stocks []model.Stock `json:"stocks"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/stocks", accessToken, nil, &out)
	return out.Stocks, err
}

func (c *Client) ListGames(ctx context.Context, accessToken string) ([]model.Game, error) {
	var out struct {
		Games []model.Game `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games", accessToken, nil, &out)
	return out.Games, err
}

func (c *Client) CreateGame(ctx context.Context, accessToken string, in CreateGameRequest) (GameView, error) {
	var out GameView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", accessToken, in, &out)
	return out, err
}

func (c *Client) JoinGame(ctx context.Context, accessToken, inviteCode, displayName string) (GameView, error) {
	body := map[string]any{"inviteCode": inviteCode}
	if displayName != "" {
		body["displayName"] = displayName
	}
	var out GameView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/join", accessToken, body, &out)
	return out, err
}

func (c *Client) Game(ctx context.Context, accessToken, gameID string) (GameView, error) {
	var out GameView
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, ""), accessToken, nil, &out)
	return out, err
}

func (c *Client) Standings(ctx context.Context, accessToken, gameID string) ([]game.Standing, error) {
	var out struct {
		Standings []game.Standing `json:"standings"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, "/standings"), accessToken, nil, &out)
	return out.Standings, err
}

func (c *Client) KickPlayer(ctx context.Context, accessToken, gameID, playerID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, gamePath(gameID, "/players/"+url.PathEscape(playerID)), accessToken, nil, nil)
}

func (c *Client) Buy(ctx context.Context, accessToken, gameID string, in orders.OrderRequest) (orders.Receipt, error) {
	var out orders.Receipt
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "/orders/buy"), accessToken, in, &out)
	return out, err
}

func (c *Client) Sell(ctx context.Context, accessToken, gameID string, in orders.OrderRequest) (orders.Receipt, error) {
	var out orders.Receipt
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "/orders/sell"), accessToken, in, &out)
	return out, err
}

func (c *Client) SellAll(ctx context.Context, accessToken, gameID string, ref orders.InstrumentRef) (orders.Receipt, error) {
	var out orders.Receipt
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "/orders/sell-all"), accessToken, ref, &out)
	return out, err
}

func (c *Client) Orders(ctx context.Context, accessToken, gameID string) ([]model.Order, error) {
	var out struct {
		Orders []model.Order `json:"orders"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, "/orders"), accessToken, nil, &out)
	return out.Orders, err
}

func (c *Client) Positions(ctx context.Context, accessToken, gameID string) ([]Position, error) {
	var out struct {
		Positions []Position `json:"positions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, "/positions"), accessToken, nil, &out)
	return out.Positions, err
}

func (c *Client) AggregateSeries(ctx context.Context, accessToken, gameID, window string) ([]series.Point, error) {
	path := gamePath(gameID, "/historical-aggregate-positions")
	if window != "" {
		path += "?latest=" + url.QueryEscape(window)
	}
	var out []series.Point
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out)
	return out, err
}

func (c *Client) HoldingsValue(ctx context.Context, accessToken, gameID string) (series.HoldingsValue, error) {
	var out series.HoldingsValue
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, "/holdings-value"), accessToken, nil, &out)
	return out, err
}

func (c *Client) HoldingsChange(ctx context.Context, accessToken, gameID string) (series.HoldingsChange, error) {
	var out series.HoldingsChange
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, "/holdings-change"), accessToken, nil, &out)
	return out, err
}

func gamePath(gameID, suffix string) string {
	return "/v1/games/" + url.PathEscape(gameID) + suffix
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorMessage unwraps the server's {"error": "..."} body, falling back to
// the raw text for proxies and other non-JSON responses.
func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
