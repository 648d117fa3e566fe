package marketdata

import (
	"context"
	"strings"
)

// EventKeywords 宏观事件 -> 市场关键词
var EventKeywords = map[string][]string{
	"cpi":               {"cpi", "inflation"},
	"ppi":               {"ppi"},
	"fomc_meeting":      {"fomc", "fed", "rate"},
	"powell_speech":     {"powell", "fed"},
	"nonfarm_payrolls":  {"payroll", "jobs"},
	"unemployment_rate": {"unemployment"},
	"gdp":               {"gdp"},
	"retail_sales":      {"retail"},
}

// eventTerms 事件名按下划线拆分后的词加上关键词表
func eventTerms(eventName string) []string {
	name := strings.ToLower(strings.TrimSpace(eventName))
	seen := map[string]struct{}{}
	var terms []string
	add := func(s string) {
		if len(s) < 2 {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		terms = append(terms, s)
	}
	for _, tok := range strings.Split(name, "_") {
		add(tok)
	}
	for _, kw := range EventKeywords[name] {
		add(kw)
	}
	return terms
}

// matchMarkets 市场 ID 或问题文本包含任一关键词即视为相关（大小写不敏感）
func matchMarkets(ctx context.Context, eventName string, candidates []string, describe func(ctx context.Context, id string) string) []string {
	terms := eventTerms(eventName)
	out := make([]string, 0)
	for _, id := range candidates {
		text := strings.ToLower(id + " " + describe(ctx, id))
		for _, term := range terms {
			if strings.Contains(text, term) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}
