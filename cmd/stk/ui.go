package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	cl "stockgame/internal/cli"
	"stockgame/internal/game"
	"stockgame/internal/model"
	"stockgame/internal/orders"
	"stockgame/internal/series"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("6")).Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	chartStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptPassword reads without echo when stdin is a terminal and falls back
// to a plain line read for piped input.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptDecimal(label string) (decimal.Decimal, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return decimal.Zero, err
		}
		v, err := parsePositive(text)
		if err != nil {
			printWarn(err.Error())
			continue
		}
		return v, nil
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func promptTicker(label string) (string, error) {
	for {
		ticker, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if err := game.ValidateTicker(ticker); err != nil {
			printWarn(err.Error())
			continue
		}
		return ticker, nil
	}
}

func parsePositive(text string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(text), "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("enter a valid number")
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("value must be > 0")
	}
	return v, nil
}

func renderStocks(stocks []model.Stock) {
	accent.Println("\n== STOCKS ==")
	if len(stocks) == 0 {
		printInfo("No stocks listed.")
		return
	}
	fmt.Printf("%-8s %-28s %s\n", "TICKER", "NAME", "ID")
	for _, s := range stocks {
		fmt.Printf("%-8s %-28s %s\n", s.Ticker, truncate(s.Name, 28), dimStyle.Render(s.ID))
	}
	fmt.Println()
}

func renderGames(games []model.Game, activeID string) {
	accent.Println("\n== YOUR GAMES ==")
	if len(games) == 0 {
		printInfo("No games yet. Create one with `stk create` or join with `stk join`.")
		return
	}
	fmt.Printf("  %-36s %-22s %-12s %-8s %-16s %-16s\n", "ID", "NAME", "STATUS", "CODE", "STARTS", "ENDS")
	for _, g := range games {
		marker := " "
		if g.ID == activeID {
			marker = "*"
		}
		fmt.Printf("%s %-36s %-22s %-12s %-8s %-16s %-16s\n",
			marker,
			g.ID,
			truncate(g.Name, 22),
			statusText(g.Status),
			g.InviteCode,
			formatTime(g.StartAt),
			formatTime(g.EndAt),
		)
	}
	fmt.Println()
}

func renderRecentGames(sess cl.Session) {
	accent.Println("\n== RECENT GAMES ==")
	if len(sess.RecentGames) == 0 {
		printInfo("No game selected yet. Run `stk games` and `stk use <game-id>`.")
		return
	}
	for _, id := range sess.RecentGames {
		marker := " "
		if id == sess.GameID {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, id)
	}
	fmt.Println()
}

func renderGameView(v cl.GameView) {
	lines := []string{
		titleStyle.Render(v.Game.Name),
		fmt.Sprintf("Status:        %s", statusText(v.Game.Status)),
		fmt.Sprintf("Invite code:   %s", v.Game.InviteCode),
		fmt.Sprintf("Runs:          %s → %s", formatTime(v.Game.StartAt), formatTime(v.Game.EndAt)),
		fmt.Sprintf("Starting cash: $%s", formatMoney(v.Game.DefaultBuyingPower)),
		"",
		fmt.Sprintf("Playing as:    %s", v.Player.DisplayName),
		fmt.Sprintf("Buying power:  $%s", formatMoney(v.Player.BuyingPower)),
	}
	if v.Player.IsGameAdmin {
		lines = append(lines, dimStyle.Render("You are the game admin."))
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
	fmt.Println(dimStyle.Render("game id " + v.Game.ID))
}

func renderStandings(rows []game.Standing, selfPlayerID string) {
	accent.Println("\n== STANDINGS ==")
	if len(rows) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-5s %-22s %14s %14s %14s\n", "RANK", "PLAYER", "CASH", "INVESTED", "TOTAL")
	for _, r := range rows {
		name := truncate(r.DisplayName, 22)
		if r.PlayerID == selfPlayerID {
			name = accent.Sprint(name)
		}
		fmt.Printf("%-5d %-22s %14s %14s %14s\n",
			r.Rank,
			name,
			formatMoney(r.BuyingPower),
			formatMoney(r.Invested),
			formatMoney(r.Total),
		)
	}
	fmt.Println()
}

func renderReceipt(r orders.Receipt) {
	verb := "Bought"
	if r.Type == model.OrderSell {
		verb = "Sold"
	}
	printSuccess(fmt.Sprintf("%s %s %s @ $%s ($%s)", verb, r.Quantity.String(), r.Ticker, formatMoney(r.BoughtAt), formatMoney(r.Notional)))
	printInfo(fmt.Sprintf("Buying power: $%s", formatMoney(r.CurrentBuyingPower)))
}

func renderOrders(rows []model.Order, tickers map[string]string) {
	accent.Println("\n== ORDERS ==")
	if len(rows) == 0 {
		printInfo("No orders yet.")
		return
	}
	fmt.Printf("%-16s %-5s %-8s %14s %12s %14s\n", "TIME", "SIDE", "TICKER", "QTY", "PRICE", "NOTIONAL")
	for _, o := range rows {
		side := success.Sprintf("%-5s", o.Type)
		if o.Type == model.OrderSell {
			side = danger.Sprintf("%-5s", o.Type)
		}
		ticker := tickers[o.StockID]
		if ticker == "" {
			ticker = truncate(o.StockID, 8)
		}
		fmt.Printf("%-16s %s %-8s %14s %12s %14s\n",
			formatTime(o.CreatedAt),
			side,
			ticker,
			o.Quantity.String(),
			formatMoney(o.Price),
			formatMoney(o.Value),
		)
	}
	fmt.Println()
}

func renderHoldings(positions []cl.Position, bp decimal.Decimal, value series.HoldingsValue, change series.HoldingsChange) {
	summary := []string{
		titleStyle.Render("Portfolio"),
		fmt.Sprintf("Cash:          $%s", formatMoney(bp)),
	}
	if value.Value != nil {
		summary = append(summary, fmt.Sprintf("Total value:   $%s", formatMoney(*value.Value)))
	} else {
		summary = append(summary, "Total value:   "+dimStyle.Render("no trades yet"))
	}
	summary = append(summary,
		fmt.Sprintf("Today:         %s (%s)", colorizeMoney(change.TodayChange), colorizePercent(change.TodayChangePercent)),
		fmt.Sprintf("All time:      %s (%s)", colorizeMoney(change.TotalChange), colorizePercent(change.TotalChangePercent)),
	)
	fmt.Println(boxStyle.Render(strings.Join(summary, "\n")))

	accent.Println("Positions")
	if len(positions) == 0 {
		printInfo("No open positions.")
		fmt.Println()
		return
	}
	fmt.Printf("%-8s %-22s %14s %12s %12s %14s %14s\n", "TICKER", "NAME", "QTY", "AVG", "NOW", "VALUE", "P/L")
	for _, p := range positions {
		avg, now, val, pl := "-", "-", "-", "-"
		if p.AvgPrice != nil {
			avg = formatMoney(*p.AvgPrice)
		}
		if p.CurrentPrice != nil {
			now = formatMoney(*p.CurrentPrice)
		}
		if p.MarketValue != nil {
			val = formatMoney(*p.MarketValue)
			if p.AvgPrice != nil {
				pl = colorizeMoney(p.MarketValue.Sub(p.AvgPrice.Mul(p.Quantity)))
			}
		}
		fmt.Printf("%-8s %-22s %14s %12s %12s %14s %14s\n",
			p.Ticker,
			truncate(p.Name, 22),
			p.Quantity.String(),
			avg,
			now,
			val,
			pl,
		)
	}
	fmt.Println()
}

func renderChart(points []series.Point, window string, width int) {
	if window == "" {
		window = string(series.All)
	}
	if len(points) == 0 {
		printInfo("No data for this window.")
		return
	}
	first, last := points[0], points[len(points)-1]
	lo, hi := first.Value, first.Value
	for _, p := range points {
		lo = decimal.Min(lo, p.Value)
		hi = decimal.Max(hi, p.Value)
	}
	body := []string{
		titleStyle.Render(fmt.Sprintf("Portfolio value (%s)", window)),
		chartStyle.Render(sparkline(points, width)),
		dimStyle.Render(fmt.Sprintf("%s → %s", formatTime(first.CreatedAt), formatTime(last.CreatedAt))),
		fmt.Sprintf("Low $%s  High $%s  Last $%s", formatMoney(lo), formatMoney(hi), formatMoney(last.Value)),
		fmt.Sprintf("Change %s", colorizeMoney(last.Value.Sub(first.Value))),
	}
	fmt.Println(boxStyle.Render(strings.Join(body, "\n")))
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline downsamples points to at most width columns and maps each onto
// one of eight block heights.
func sparkline(points []series.Point, width int) string {
	if width <= 0 {
		width = 60
	}
	cols := make([]float64, 0, width)
	step := float64(len(points)) / float64(width)
	if step < 1 {
		step = 1
	}
	for i := 0.0; int(i) < len(points) && len(cols) < width; i += step {
		cols = append(cols, points[int(i)].Value.InexactFloat64())
	}
	lo, hi := cols[0], cols[0]
	for _, v := range cols {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	var b strings.Builder
	for _, v := range cols {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

func statusText(s model.GameStatus) string {
	switch s {
	case model.GameActive:
		return success.Sprint(string(s))
	case model.GameFinished:
		return danger.Sprint(string(s))
	default:
		return warn.Sprint(string(s))
	}
}

func colorizeMoney(v decimal.Decimal) string {
	text := formatMoney(v)
	switch v.Sign() {
	case 1:
		return success.Sprint("+" + text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v decimal.Decimal) string {
	text := v.StringFixed(2) + "%"
	switch v.Sign() {
	case 1:
		return success.Sprint("+" + text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMoney(v decimal.Decimal) string {
	text := v.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(text, ".")
	sign := ""
	if v.Round(2).IsNegative() {
		sign = "-"
	}
	return sign + comma(whole) + "." + frac
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func comma(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
