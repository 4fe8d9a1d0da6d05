package assist

import (
	"fmt"
	"strings"

	"finsight/internal/core"
)

// System instructions for the two model interactions. The chat instruction
// defines the TRANSACTION_DATA protocol the extractor parses.
const (
	insightSystemPrompt = "You are a helpful financial advisor AI. Provide clear, actionable advice " +
		"based on the financial data provided. Be encouraging but honest about areas that need " +
		"improvement. Format your response in a clear, easy-to-read manner with bullet points and " +
		"sections where appropriate."

	chatSystemPrompt = `You are a helpful finance assistant that helps users add transactions to their finance tracker.

Your job is to:
1. Parse user messages to extract transaction information
2. Ask clarifying questions if information is missing
3. Provide a friendly response
4. If you can extract a complete transaction, format it as JSON

For a complete transaction, you need:
- amount (number)
- description (string)
- category (one of: "Food & Dining", "Transportation", "Shopping", "Entertainment", "Bills & Utilities", "Healthcare", "Education", "Travel", "Salary", "Freelance", "Investment", "Other")
- type ("income" or "expense")
- date (YYYY-MM-DD format, default to today if not specified)

If you can extract a complete transaction, end your response with:
TRANSACTION_DATA: {json object}

Examples:
- "I spent $25 on lunch" -> expense, amount: 25, category: "Food & Dining"
- "Got paid $500 for freelance work" -> income, amount: 500, category: "Freelance"
- "Paid electricity bill $120" -> expense, amount: 120, category: "Bills & Utilities"

Be conversational and helpful. If information is missing, ask for it naturally.`
)

// BuildInsightPrompt renders the summary into the fixed prompt layout:
// totals, net balance, count, category breakdown, recent transactions.
// A non-empty question switches from general analysis to question answering.
func BuildInsightPrompt(s core.Summary, question string) string {
	var b strings.Builder

	b.WriteString("\nFinancial Summary:\n")
	fmt.Fprintf(&b, "- Total Income: %s\n", s.TotalIncome.USD())
	fmt.Fprintf(&b, "- Total Expenses: %s\n", s.TotalExpenses.USD())
	fmt.Fprintf(&b, "- Net Balance: %s\n", s.NetBalance.USD())
	fmt.Fprintf(&b, "- Number of Transactions: %d\n", s.Count)

	b.WriteString("\nExpense Breakdown by Category:\n")
	// Fixed enum order keeps the prompt deterministic for identical input.
	for _, cat := range core.Categories() {
		amount, ok := s.ByCategory[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", cat, amount.USD())
	}

	b.WriteString("\nRecent Transactions:\n")
	b.WriteString(strings.Join(s.Recent, "\n"))
	b.WriteString("\n")

	summary := b.String()
	if q := strings.TrimSpace(question); q != "" {
		return fmt.Sprintf("Based on this financial data, please answer the following question: %q\n\n%s", q, summary)
	}
	return "Please analyze this financial data and provide insights, recommendations, and observations " +
		"about spending patterns, financial health, and areas for improvement:\n\n" + summary
}
