package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stockgame/internal/auth"
	cl "stockgame/internal/cli"
	"stockgame/internal/config"
	"stockgame/internal/model"
	"stockgame/internal/orders"
	"stockgame/internal/series"
)

type globals struct {
	apiBase  string
	gameID   string
	sessions *cl.SessionStore
}

func main() {
	cfg := config.LoadCLIFromEnv()
	sessions, err := cl.DefaultSessionStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	g := &globals{apiBase: cfg.APIBaseURL, sessions: sessions}

	root := &cobra.Command{
		Use:          "stk",
		Short:        "Stock market game CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "API base URL")
	root.PersistentFlags().StringVar(&g.gameID, "game", "", "game ID (defaults to the one picked with `stk use`)")

	root.AddCommand(
		newSignupCmd(g),
		newLoginCmd(g),
		newLogoutCmd(g),
		newStocksCmd(g),
		newGamesCmd(g),
		newCreateCmd(g),
		newJoinCmd(g),
		newUseCmd(g),
		newGameCmd(g),
		newStandingsCmd(g),
		newKickCmd(g),
		newOrderCmd(g, model.OrderBuy),
		newOrderCmd(g, model.OrderSell),
		newSellAllCmd(g),
		newOrdersCmd(g),
		newHoldingsCmd(g),
		newChartCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(g *globals) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(g.apiBase), "/"))
}

type authedFunc func(ctx context.Context, client *cl.Client, sess cl.Session) error

// runAuthed loads the saved session and runs fn, refreshing the access token
// once when the API rejects it.
func runAuthed(cmd *cobra.Command, g *globals, fn authedFunc) error {
	sess, err := g.sessions.Load()
	if err != nil {
		return fmt.Errorf("login required: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(g)

	err = fn(ctx, client, sess)
	if !cl.IsUnauthorized(err) || sess.RefreshToken == "" {
		return err
	}
	fresh, rerr := client.Refresh(ctx, sess.RefreshToken)
	if rerr != nil {
		return fmt.Errorf("session expired, run `stk login`: %w", err)
	}
	sess.AccessToken = fresh.AccessToken
	sess.RefreshToken = fresh.RefreshToken
	if err := g.sessions.Save(sess); err != nil {
		return err
	}
	return fn(ctx, client, sess)
}

// runInGame is runAuthed for commands scoped to the selected game.
func runInGame(cmd *cobra.Command, g *globals, fn func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error) error {
	return runAuthed(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
		gameID, err := sess.ActiveGame(g.gameID)
		if err != nil {
			return err
		}
		return fn(ctx, client, sess, gameID)
	})
}

func saveAuth(g *globals, session auth.Session) error {
	return g.sessions.SignIn(cl.Session{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		Email:        session.User.Email,
		UserID:       session.User.ID,
	})
}

func newSignupCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			displayName, err := promptOptional("Display name (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(g).Signup(ctx, email, password, displayName)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `stk login`.")
				return nil
			}
			if err := saveAuth(g, session); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and save a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(g).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := saveAuth(g, session); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.sessions.Clear(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStocksCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stocks",
		Short: "List tradable stocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthed(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				stocks, err := client.ListStocks(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderStocks(stocks)
				return nil
			})
		},
	}
}

func newGamesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List games you are playing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthed(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				games, err := client.ListGames(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderGames(games, sess.GameID)
				return nil
			})
		},
	}
}

func newCreateCmd(g *globals) *cobra.Command {
	var (
		name        string
		start       string
		days        int64
		buyingPower string
		displayName string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a game and select it",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if strings.TrimSpace(name) == "" {
				if name, err = promptRequired("Game name"); err != nil {
					return err
				}
			}
			if days <= 0 {
				if days, err = promptInt64("Length in days", 1); err != nil {
					return err
				}
			}
			startAt, err := parseStart(start)
			if err != nil {
				return err
			}
			req := cl.CreateGameRequest{
				Name:        name,
				StartAt:     startAt,
				EndAt:       startAt.Add(time.Duration(days) * 24 * time.Hour),
				DisplayName: displayName,
			}
			if buyingPower != "" {
				bp, err := parsePositive(buyingPower)
				if err != nil {
					return fmt.Errorf("--buying-power: %w", err)
				}
				req.DefaultBuyingPower = &bp
			}

			return runAuthed(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				view, err := client.CreateGame(ctx, sess.AccessToken, req)
				if err != nil {
					return err
				}
				if err := g.sessions.SelectGame(&sess, view.Game.ID); err != nil {
					return err
				}
				printSuccess("Game created. Share the invite code with your friends.")
				renderGameView(view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "game name")
	cmd.Flags().StringVar(&start, "start", "", "start time, RFC3339 or YYYY-MM-DD (default now)")
	cmd.Flags().Int64Var(&days, "days", 0, "game length in days")
	cmd.Flags().StringVar(&buyingPower, "buying-power", "", "starting cash per player")
	cmd.Flags().StringVar(&displayName, "as", "", "your display name in this game")
	return cmd
}

func parseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--start must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

func newJoinCmd(g *globals) *cobra.Command {
	var displayName string
	cmd := &cobra.Command{
		Use:   "join [invite-code]",
		Short: "Join a game by invite code and select it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := ""
			if len(args) == 1 {
				code = args[0]
			} else {
				var err error
				if code, err = promptRequired("Invite code"); err != nil {
					return err
				}
			}
			code = strings.ToUpper(strings.TrimSpace(code))
			return runAuthed(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				view, err := client.JoinGame(ctx, sess.AccessToken, code, displayName)
				if err != nil {
					return err
				}
				if err := g.sessions.SelectGame(&sess, view.Game.ID); err != nil {
					return err
				}
				printSuccess("Joined " + view.Game.Name + ".")
				renderGameView(view)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&displayName, "as", "", "your display name in this game")
	return cmd
}

func newUseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "use [game-id]",
		Short: "Select the game other commands act on",
		Long:  "Select the game other commands act on. Without an argument, lists recently selected games.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthed(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session) error {
				if len(args) == 0 {
					renderRecentGames(sess)
					return nil
				}
				view, err := client.Game(ctx, sess.AccessToken, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if err := g.sessions.SelectGame(&sess, view.Game.ID); err != nil {
					return err
				}
				printSuccess("Now playing " + view.Game.Name + ".")
				return nil
			})
		},
	}
}

func newGameCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "game",
		Short: "Show the selected game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				view, err := client.Game(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				renderGameView(view)
				return nil
			})
		},
	}
}

func newStandingsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "standings",
		Short:   "Show the game leaderboard",
		Aliases: []string{"leaderboard"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				view, err := client.Game(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				rows, err := client.Standings(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				renderStandings(rows, view.Player.ID)
				return nil
			})
		},
	}
}

func newKickCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "kick <player-id>",
		Short: "Remove a player from the game (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				if err := client.KickPlayer(ctx, sess.AccessToken, gameID, args[0]); err != nil {
					return err
				}
				printSuccess("Player removed.")
				return nil
			})
		},
	}
}

func newOrderCmd(g *globals, side model.OrderType) *cobra.Command {
	var qty, notional string
	verb := strings.ToLower(string(side))
	cmd := &cobra.Command{
		Use:   verb + " [ticker]",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " shares by quantity or dollar amount",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker, err := tickerFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			req := orders.OrderRequest{InstrumentRef: orders.InstrumentRef{Ticker: ticker}}
			if req.Quantity, req.Notional, err = orderAmount(qty, notional); err != nil {
				return err
			}
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				place := client.Buy
				if side == model.OrderSell {
					place = client.Sell
				}
				receipt, err := place(ctx, sess.AccessToken, gameID, req)
				if err != nil {
					return err
				}
				renderReceipt(receipt)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&qty, "qty", "", "number of shares (fractional allowed)")
	cmd.Flags().StringVar(&notional, "notional", "", "dollar amount")
	cmd.MarkFlagsMutuallyExclusive("qty", "notional")
	return cmd
}

// orderAmount resolves the --qty/--notional flags, prompting when neither
// was given.
func orderAmount(qty, notional string) (*decimal.Decimal, *decimal.Decimal, error) {
	switch {
	case qty != "":
		v, err := parsePositive(qty)
		if err != nil {
			return nil, nil, fmt.Errorf("--qty: %w", err)
		}
		return &v, nil, nil
	case notional != "":
		v, err := parsePositive(notional)
		if err != nil {
			return nil, nil, fmt.Errorf("--notional: %w", err)
		}
		return nil, &v, nil
	}
	by, err := promptChoice("Order by", []string{"shares", "dollars"}, "shares")
	if err != nil {
		return nil, nil, err
	}
	if by == "dollars" {
		v, err := promptDecimal("Dollar amount")
		if err != nil {
			return nil, nil, err
		}
		return nil, &v, nil
	}
	v, err := promptDecimal("Shares")
	if err != nil {
		return nil, nil, err
	}
	return &v, nil, nil
}

func tickerFromArgsOrPrompt(args []string) (string, error) {
	if len(args) == 1 {
		return strings.ToUpper(strings.TrimSpace(args[0])), nil
	}
	return promptTicker("Ticker")
}

func newSellAllCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sell-all [ticker]",
		Short: "Liquidate a whole position",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker, err := tickerFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				receipt, err := client.SellAll(ctx, sess.AccessToken, gameID, orders.InstrumentRef{Ticker: ticker})
				if err != nil {
					return err
				}
				renderReceipt(receipt)
				return nil
			})
		},
	}
}

func newOrdersCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Show your order history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				rows, err := client.Orders(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				stocks, err := client.ListStocks(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				tickers := make(map[string]string, len(stocks))
				for _, s := range stocks {
					tickers[s.ID] = s.Ticker
				}
				renderOrders(rows, tickers)
				return nil
			})
		},
	}
}

func newHoldingsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "holdings",
		Short:   "Show cash, positions and portfolio change",
		Aliases: []string{"dash", "portfolio"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				view, err := client.Game(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				positions, err := client.Positions(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				value, err := client.HoldingsValue(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				change, err := client.HoldingsChange(ctx, sess.AccessToken, gameID)
				if err != nil {
					return err
				}
				renderHoldings(positions, view.Player.BuyingPower, value, change)
				return nil
			})
		},
	}
}

func newChartCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "chart [window]",
		Short: "Chart portfolio value (ONE_DAY, ONE_WEEK, ONE_MONTH, THREE_MONTHS, ONE_YEAR, ALL)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window := ""
			if len(args) == 1 {
				w, err := series.ParseWindow(args[0])
				if err != nil {
					return err
				}
				window = string(w)
			}
			return runInGame(cmd, g, func(ctx context.Context, client *cl.Client, sess cl.Session, gameID string) error {
				points, err := client.AggregateSeries(ctx, sess.AccessToken, gameID, window)
				if err != nil {
					return err
				}
				renderChart(points, window, chartWidth())
				return nil
			})
		},
	}
}

func chartWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w < 20 {
		return 60
	}
	return min(w-8, 120)
}
