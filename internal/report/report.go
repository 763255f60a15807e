// Package report renders session statistics, positions, trades and
// signals as terminal tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/store/sqlite"
	"gainer-scanner/internal/strategy"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func pct(v float64) string { return fmt.Sprintf("%+.2f%%", v) }

func price(v float64) string { return fmt.Sprintf("%.8g", v) }

// ProfitFactor formats a profit factor, spelling out the unbounded case.
func ProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "∞ (no losses)"
	}
	return fmt.Sprintf("%.2f", pf)
}

// Stats renders trading statistics.
func Stats(w io.Writer, st portfolio.Statistics) {
	t := newTable(w, "SESSION STATISTICS")

	t.AppendRows([]table.Row{
		{"Trades", st.TotalTrades},
		{"Wins / Losses", fmt.Sprintf("%d / %d", st.Wins, st.Losses)},
		{"Win rate", fmt.Sprintf("%.1f%%", st.WinRatePct)},
		{"Total P&L", pct(st.TotalPnLPct)},
		{"Profit factor", ProfitFactor(st.ProfitFactor)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Best / Worst", pct(st.BestTradePct) + " / " + pct(st.WorstTradePct)},
		{"Avg win / loss", pct(st.AvgWinPct) + " / " + pct(st.AvgLossPct)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"First target hits", st.FirstTargetHits},
		{"Second target hits", st.SecondTargetHits},
		{"Stop losses", st.StopLossHits},
		{"Breakeven exits", st.BreakevenExits},
		{"Manual closes", st.ManualCloses},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

// Positions renders open positions.
func Positions(w io.Writer, positions []portfolio.Position) {
	t := newTable(w, "OPEN POSITIONS")
	t.AppendHeader(table.Row{"Symbol", "Status", "Entry", "Current", "Stop", "TP1", "TP2", "Left", "P&L"})
	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Symbol, p.Status, price(p.Entry), price(p.Current), price(p.StopLoss),
			price(p.TP1), price(p.TP2), fmt.Sprintf("%.0f%%", p.Remaining*100), pct(p.TotalPnLPct()),
		})
	}
	if len(positions) == 0 {
		t.AppendRow(table.Row{"none"})
	}
	t.Render()
}

// Trades renders journal trade rows.
func Trades(w io.Writer, trades []sqlite.TradeRecord) {
	t := newTable(w, "TRADE HISTORY")
	t.AppendHeader(table.Row{"Closed", "Symbol", "Exit", "Entry", "Exit price", "TP1", "P&L", "Held"})
	var total float64
	for _, tr := range trades {
		tp1 := ""
		if tr.HitTP1 {
			tp1 = "yes"
		}
		t.AppendRow(table.Row{
			tr.ClosedAt.Local().Format(timeLayout), tr.Symbol, tr.Status, price(tr.Entry), price(tr.ExitPrice),
			tp1, pct(tr.RealizedPct), tr.ClosedAt.Sub(tr.OpenedAt).Round(time.Second),
		})
		total += tr.RealizedPct
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d trades", len(trades)), pct(total)})
	t.Render()
}

// Signals renders signal log entries.
func Signals(w io.Writer, signals []strategy.Signal) {
	t := newTable(w, "SIGNALS")
	t.AppendHeader(table.Row{"Time", "Symbol", "Lvl", "Conf", "Score", "Entry", "Stop", "TP1", "TP2", "R:R", "Conditions"})
	for _, s := range signals {
		conds := make([]string, len(s.Conditions))
		for i, c := range s.Conditions {
			conds[i] = string(c)
		}
		t.AppendRow(table.Row{
			s.Timestamp.Local().Format(timeLayout), s.Symbol, s.EntryLevel, s.Confidence, fmt.Sprintf("%.0f", s.Score),
			price(s.Entry), price(s.StopLoss), price(s.TP1), price(s.TP2), fmt.Sprintf("%.2f", s.RewardRisk),
			strings.Join(conds, ","),
		})
	}
	t.Render()
}
