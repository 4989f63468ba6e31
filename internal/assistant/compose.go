package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cashplan/cashplan/internal/llm"
	"github.com/cashplan/cashplan/internal/observability"
	"github.com/cashplan/cashplan/internal/query"
)

const (
	NoRecordsMessage = "Não encontrei nenhum registro correspondente à sua pergunta."
	summaryRowLimit  = 10
)

type Composer struct {
	gateway  *llm.Gateway
	currency string
	logger   *slog.Logger
}

func NewComposer(gateway *llm.Gateway, currency string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Composer{gateway: gateway, currency: currency, logger: logger}
}

// ComposeQuery explains result through a follow-up on conv. It never returns
// an empty string: empty results are answered locally and a failed follow-up
// falls back to a plain summary of the rows.
func (c *Composer) ComposeQuery(ctx context.Context, conv *llm.Conversation, sql string, result query.Result) string {
	if len(result.Rows) == 0 {
		return NoRecordsMessage
	}

	rowsJSON, err := json.Marshal(result.Rows)
	if err != nil {
		c.logger.WarnContext(ctx, "encode query rows for explanation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return summarizeRows(result)
	}

	explanation, err := c.gateway.Continue(ctx, conv, BuildExplanationPrompt(sql, string(rowsJSON), c.currency))
	if err != nil {
		c.logger.WarnContext(ctx, "query explanation failed, using local summary",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return summarizeRows(result)
	}
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return summarizeRows(result)
	}
	return explanation
}

func summarizeRows(result query.Result) string {
	if len(result.Rows) == 0 {
		return NoRecordsMessage
	}
	columns := result.Columns
	if len(columns) == 0 {
		for column := range result.Rows[0] {
			columns = append(columns, column)
		}
		sort.Strings(columns)
	}

	var b strings.Builder
	if len(result.Rows) == 1 {
		b.WriteString("Encontrei 1 registro:")
	} else {
		fmt.Fprintf(&b, "Encontrei %d registros:", len(result.Rows))
	}
	for i, row := range result.Rows {
		if i == summaryRowLimit {
			fmt.Fprintf(&b, "\n... e mais %d.", len(result.Rows)-summaryRowLimit)
			break
		}
		fields := make([]string, 0, len(columns))
		for _, column := range columns {
			fields = append(fields, fmt.Sprintf("%s: %v", column, row[column]))
		}
		b.WriteString("\n- " + strings.Join(fields, ", "))
	}
	if result.Truncated {
		b.WriteString("\nO resultado foi limitado; refine a pergunta para ver menos registros.")
	}
	return b.String()
}

// ComposeInsert confirms a created record without calling the model.
func (c *Composer) ComposeInsert(created Created) string {
	switch {
	case created.Transaction != nil:
		txn := created.Transaction
		text := fmt.Sprintf("Transação registrada: %s, %s, categoria %s, em %s.",
			txn.Description,
			FormatMoney(c.currency, txn.Amount),
			txn.Category,
			txn.Date.Format("02/01/2006"),
		)
		if created.AccountBalance != nil {
			text += " Novo saldo da conta: " + FormatMoney(c.currency, *created.AccountBalance) + "."
		}
		return text
	case created.Account != nil:
		account := created.Account
		return fmt.Sprintf("Conta criada: %s (banco %s), saldo inicial %s.",
			account.Name, account.Bank, FormatMoney(c.currency, account.Balance))
	case created.CreditCard != nil:
		card := created.CreditCard
		return fmt.Sprintf("Cartão de crédito criado: %s (banco %s), limite %s, utilizado %s.",
			card.Name, card.Bank,
			FormatMoney(c.currency, decimal.NewFromInt(card.Limit)),
			FormatMoney(c.currency, decimal.NewFromInt(card.Used)),
		)
	case created.Goal != nil:
		goal := created.Goal
		return fmt.Sprintf("Meta criada: %s, objetivo %s, acumulado %s.",
			goal.Name, FormatMoney(c.currency, goal.Target), FormatMoney(c.currency, goal.Current))
	case created.Investment != nil:
		investment := created.Investment
		return fmt.Sprintf("Investimento registrado: %s (%s), valor %s, rentabilidade %s%%.",
			investment.Name, investment.Type,
			FormatMoney(c.currency, investment.Value),
			formatDecimal(investment.ReturnRate, 2),
		)
	default:
		return "Registro criado."
	}
}

// Fields summarises the created record for the response payload.
func (c Created) Fields() map[string]any {
	fields := map[string]any{"entity_type": string(c.Entity), "id": c.ID}
	switch {
	case c.Transaction != nil:
		fields["description"] = c.Transaction.Description
		fields["amount"] = c.Transaction.Amount.StringFixed(2)
		fields["type"] = c.Transaction.Type
		fields["category"] = c.Transaction.Category
		fields["date"] = c.Transaction.Date.Format("2006-01-02")
		if c.Transaction.AccountID != nil {
			fields["account_id"] = *c.Transaction.AccountID
		}
		if c.AccountBalance != nil {
			fields["account_balance"] = c.AccountBalance.StringFixed(2)
		}
	case c.Account != nil:
		fields["name"] = c.Account.Name
		fields["bank"] = c.Account.Bank
		fields["balance"] = c.Account.Balance.StringFixed(2)
	case c.CreditCard != nil:
		fields["name"] = c.CreditCard.Name
		fields["bank"] = c.CreditCard.Bank
		fields["limit"] = c.CreditCard.Limit
		fields["used"] = c.CreditCard.Used
	case c.Goal != nil:
		fields["name"] = c.Goal.Name
		fields["target"] = c.Goal.Target.StringFixed(2)
		fields["current"] = c.Goal.Current.StringFixed(2)
	case c.Investment != nil:
		fields["name"] = c.Investment.Name
		fields["type"] = c.Investment.Type
		fields["value"] = c.Investment.Value.StringFixed(2)
		fields["return_rate"] = c.Investment.ReturnRate.StringFixed(2)
	}
	return fields
}
