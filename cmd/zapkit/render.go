package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"zapkit/internal/amm"
	"zapkit/internal/model"
	"zapkit/internal/session"
)

func severityString(s amm.Severity, value string) string {
	switch s {
	case amm.SeverityNone:
		return color.GreenString(value)
	case amm.SeverityLow:
		return value
	case amm.SeverityMedium:
		return color.YellowString(value)
	case amm.SeverityHigh:
		return color.RedString(value)
	default:
		return color.New(color.FgHiRed, color.Bold).Sprint(value)
	}
}

func renderChains(chains []model.Chain, selected uint64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Chains")
	t.AppendHeader(table.Row{"", "ID", "Name", "Native", "Factory", "Zapper", "Staking"})
	for _, ch := range chains {
		mark := ""
		if ch.ID == selected {
			mark = "*"
		}
		t.AppendRow(table.Row{mark, ch.ID, ch.Name, ch.Native().Symbol, short(ch.Factory.Hex()), optional(ch.Zapper.Hex()), optional(ch.Chef.Hex())})
	}
	t.Render()
}

func renderQuote(q *amm.ZapQuote) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Zap " + q.Input.String() + " into " + q.Pair.Symbol())
	t.Style().Size.WidthMax = 120
	t.AppendHeader(table.Row{"", q.Pair.Token0.Display(), q.Pair.Token1.Display()})
	t.AppendRow(table.Row{"Deposited", q.Amount0.Significant(6), q.Amount1.Significant(6)})
	if q.Trade != nil {
		t.AppendRow(table.Row{"Route", q.Trade.Route.Symbols(), q.Trade.Route.Symbols()}, table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	}
	pool := q.Liquidity.Significant(6) + " " + q.Pair.Symbol() + " LP"
	t.AppendRow(table.Row{"Pool tokens", pool, pool}, table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	minimum := model.NewAmount(q.Liquidity.Token, q.MinimumOut).Significant(6)
	t.AppendRow(table.Row{"Minimum received", minimum, minimum}, table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	share := q.PoolShare.Display()
	t.AppendRow(table.Row{"Share of pool", share, share}, table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	impact := severityString(q.Severity, q.PriceImpact.String())
	t.AppendRow(table.Row{"Price impact", impact, impact}, table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	slippage := q.Slippage.String()
	t.AppendRow(table.Row{"Slippage tolerance", slippage, slippage}, table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft})
	t.Render()
}

func renderPosition(pos amm.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Your position in " + pos.Pair.Symbol())
	t.AppendHeader(table.Row{"", "Amount"})
	t.AppendRow(table.Row{"Wallet pool tokens", pos.Wallet.Significant(6)})
	t.AppendRow(table.Row{"Staked pool tokens", pos.Staked.Significant(6)})
	t.AppendRow(table.Row{"Your pool share", pos.ShareText()})
	pooled0, pooled1 := "-", "-"
	if pos.PooledKnown {
		pooled0, pooled1 = pos.Pooled0.String(), pos.Pooled1.String()
	}
	t.AppendRow(table.Row{"Pooled " + pos.Pair.Token0.Display(), pooled0})
	t.AppendRow(table.Row{"Pooled " + pos.Pair.Token1.Display(), pooled1})
	t.Render()
}

func renderPending(txs []model.PendingTx, ch model.Chain) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Transactions")
	t.AppendHeader(table.Row{"Sent", "Operation", "Summary", "Status", "Link"})
	for _, tx := range txs {
		link := tx.Hash
		if tx.ChainID == ch.ID {
			link = ch.TxURL(tx.Hash)
		}
		t.AppendRow(table.Row{tx.SentAt.Local().Format("2006-01-02 15:04:05"), tx.Operation, tx.Summary, statusString(tx.Status), link})
	}
	t.Render()
}

func renderJournal(records []model.ZapRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Recent activity")
	t.AppendHeader(table.Row{"At", "Session", "Operation", "Transition", "Tx", "Error"})
	for _, r := range records {
		t.AppendRow(table.Row{r.At.Local().Format("15:04:05"), r.SessionID, r.Operation, r.From + " > " + r.To, short(r.TxHash), r.Error})
	}
	t.Render()
}

func statusString(status string) string {
	switch status {
	case model.TxConfirmed:
		return color.GreenString(status)
	case model.TxPending:
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}

// printView shows the buttons the zap page would render for the session.
func printView(v session.View) {
	if v.Approve != nil {
		fmt.Printf("  [%s] ", buttonString(*v.Approve))
	}
	fmt.Printf("  [%s]", buttonString(v.Zap))
	if v.Stake != nil {
		fmt.Printf("  [%s]", buttonString(*v.Stake))
	}
	fmt.Println()
}

func buttonString(b session.Button) string {
	switch {
	case b.Busy:
		return color.YellowString(b.Text + "...")
	case b.Enabled:
		return color.CyanString(b.Text)
	default:
		return color.HiBlackString(b.Text)
	}
}

func short(value string) string {
	if len(value) <= 14 {
		return value
	}
	return value[:8] + "..." + value[len(value)-4:]
}

func optional(hex string) string {
	if hex == "0x0000000000000000000000000000000000000000" {
		return "-"
	}
	return short(hex)
}
