package nlp

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stock-insight/models"
)

const notAvailable = "N/A"

// SystemPrompt is the persona sent with every analysis request
const SystemPrompt = `You are a knowledgeable financial assistant and stock market analyst. You provide helpful, accurate and responsible financial information and analysis.

Guidelines:
- Base your market analysis on the data provided
- Never give specific buy or sell recommendations as financial advice
- Remind users to do their own research and consult a licensed financial advisor
- Focus on education: market trends, company fundamentals and general investment principles
- Use clear, accessible language while staying accurate

If stock data is included in the user's message, use it in your analysis. Always note that past performance does not guarantee future results.`

var printer = message.NewPrinter(language.English)

// FormatUserMessage renders query and optional stock context into a single
// prompt. Without context the output is exactly "User query: {query}".
func FormatUserMessage(query string, sc *models.StockContext) string {
	if sc == nil {
		return "User query: " + query
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User query: %s\n\nCurrent stock data for %s:\n", query, sc.Symbol)

	if q := sc.Quote; q != nil {
		sb.WriteString("\nPrice Information:\n")
		fmt.Fprintf(&sb, "- Current Price: %s\n", dollars(nonZero(q.CurrentPrice)))
		fmt.Fprintf(&sb, "- Change: %s (%s)\n", quoteChange(q), orNA(q.ChangePercent))
		fmt.Fprintf(&sb, "- Previous Close: %s\n", dollars(nonZero(q.PreviousClose)))
		fmt.Fprintf(&sb, "- Volume: %s\n", volume(q.Volume))
	}

	if o := sc.Overview; o != nil {
		sb.WriteString("\nCompany Information:\n")
		fmt.Fprintf(&sb, "- Company: %s\n", orNA(o.CompanyName))
		fmt.Fprintf(&sb, "- Sector: %s\n", orNA(o.Sector))
		fmt.Fprintf(&sb, "- Industry: %s\n", orNA(o.Industry))
		fmt.Fprintf(&sb, "- Market Cap: %s\n", marketCap(o.MarketCap))
		fmt.Fprintf(&sb, "- P/E Ratio: %s\n", number(o.PERatio))
	}

	if len(sc.News) > 0 {
		sb.WriteString("\nRecent News Headlines:\n")
		for _, item := range sc.News {
			fmt.Fprintf(&sb, "- %s\n", orNA(item.Title))
		}
	}

	return sb.String()
}

// Thousands formats n with comma separators
func Thousands(n int64) string {
	return printer.Sprintf("%d", n)
}

func quoteChange(q *models.Quote) string {
	if q.Change == 0 && q.ChangePercent == "" {
		return notAvailable
	}
	return strconv.FormatFloat(q.Change, 'f', -1, 64)
}

func volume(n int64) string {
	if n == 0 {
		return notAvailable
	}
	return Thousands(n) + " shares"
}

func marketCap(n *int64) string {
	if n == nil {
		return notAvailable
	}
	return "$" + Thousands(*n)
}

func dollars(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return "$" + strconv.FormatFloat(*v, 'f', -1, 64)
}

func number(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// nonZero treats a zero quote price as missing
func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
