package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
	"github.com/betbot/autoexec/internal/largeorder"
	"github.com/betbot/autoexec/internal/monitoring"
)

const timeLayout = "01-02 15:04:05"

func renderStatus(out io.Writer, st statusResponse) {
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Key", "Value")
	e := st.Engine
	tbl.Append("uptime", st.Uptime)
	tbl.Append("gateways", strings.Join(e.Gateways, ","))
	tbl.Append("order_history", fmt.Sprintf("%d", e.OrderHistorySize))
	tbl.Append("active_orders", fmt.Sprintf("%d", e.ActiveOrders))
	tbl.Append("circuit_breaker", fmt.Sprintf("%v", e.CircuitBreaker))
	tbl.Append("daily_notional", e.Risk.DailyNotional.StringFixed(2))
	tbl.Append("large_order_threshold", fmt.Sprintf("%.2f", e.LargeOrders.Threshold))
	if x := st.Executor; x != nil {
		tbl.Append("executor_running", fmt.Sprintf("%v", x.Running))
		tbl.Append("monitored_markets", fmt.Sprintf("%d", len(x.Markets)))
		tbl.Append("passes", fmt.Sprintf("%d", x.PassCount))
		if x.LastPassAt != nil {
			tbl.Append("last_pass", x.LastPassAt.Local().Format(timeLayout))
		}
		if x.LastError != "" {
			tbl.Append("last_error", x.LastError)
		}
	}
	if a := st.Alerts; a != nil {
		tbl.Append("open_alerts", fmt.Sprintf("%d", a.Open))
	}
	tbl.Render()
}

func renderOrders(out io.Writer, orders []execution.HistoryEntry) {
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Time", "Order", "Symbol", "Side", "Qty", "Price", "Status", "Message")
	for _, h := range orders {
		o := h.Order
		price := "MKT"
		if o.HasPrice() {
			price = fmt.Sprintf("%.4f", o.Price)
		}
		tbl.Append(
			h.Timestamp.Local().Format(timeLayout),
			o.OrderID,
			o.Instrument.Symbol,
			string(o.Side),
			fmt.Sprintf("%.2f", o.Quantity),
			price,
			string(h.Result.Status),
			h.Result.Message,
		)
	}
	tbl.Render()
}

func renderLargeSummary(out io.Writer, s largeorder.Summary) {
	fmt.Fprintf(out, "最近 %d 天大额订单 %d 笔, 总量 %.2f, 均量 %.2f\n",
		s.PeriodDays, s.TotalLargeOrders, s.TotalQuantity, s.AverageQuantity)
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Symbol", "Count")
	for _, k := range sortedKeys(s.BySymbol) {
		tbl.Append(k, fmt.Sprintf("%d", s.BySymbol[k]))
	}
	tbl.Render()
}

func renderLargeOrders(out io.Writer, recs []largeorder.Record) {
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Time", "Order", "Side", "Qty", "Price", "Account")
	for _, r := range recs {
		tbl.Append(
			r.Timestamp.Local().Format(timeLayout),
			r.OrderID,
			string(r.Side),
			fmt.Sprintf("%.2f", r.Quantity),
			fmt.Sprintf("%.4f", r.Price),
			r.AccountID,
		)
	}
	tbl.Render()
}

func renderAlerts(out io.Writer, alerts []monitoring.Alert) {
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Time", "ID", "Level", "Type", "Message")
	for _, a := range alerts {
		tbl.Append(a.Timestamp.Local().Format(timeLayout), a.ID, string(a.Level), string(a.Type), a.Message)
	}
	tbl.Render()
}

func renderPass(out io.Writer, r executor.PassResult) {
	fmt.Fprintf(out, "markets=%d recommendations=%d valid=%d submitted=%d duration=%s\n",
		r.Markets, r.Recommendations, r.Valid, r.Submitted, r.Duration)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
	if r.Batch != nil {
		renderBatch(out, *r.Batch)
	}
}

func renderEvent(out io.Writer, r executor.EventResult) {
	fmt.Fprintf(out, "event=%s status=%s", r.EventName, r.Status)
	if r.Reason != "" {
		fmt.Fprintf(out, " reason=%s", r.Reason)
	}
	if r.OrderStatus != "" {
		fmt.Fprintf(out, " orders=%s(%d)", r.OrderStatus, r.OrderCount)
	}
	fmt.Fprintln(out)
	if len(r.MatchedMarkets) > 0 {
		fmt.Fprintf(out, "matched: %s\n", strings.Join(r.MatchedMarkets, ", "))
	}
	if r.OrderResult != nil {
		renderBatch(out, *r.OrderResult)
	}
}

func renderBatch(out io.Writer, b execution.BatchResult) {
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Order", "Status", "Failed Step", "Message")
	for _, d := range b.Details {
		tbl.Append(d.OrderID, string(d.Status), d.FailedStep(), d.Message)
	}
	tbl.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
