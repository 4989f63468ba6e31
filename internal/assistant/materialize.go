package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cashplan/cashplan/internal/store"
)

type EntityWriter interface {
	CreateTransaction(ctx context.Context, in store.CreateTransactionInput) (store.CreateTransactionResult, error)
	CreateAccount(ctx context.Context, in store.CreateAccountInput) (store.Account, error)
	CreateCreditCard(ctx context.Context, in store.CreateCreditCardInput) (store.CreditCard, error)
	CreateGoal(ctx context.Context, in store.CreateGoalInput) (store.Goal, error)
	CreateInvestment(ctx context.Context, in store.CreateInvestmentInput) (store.Investment, error)
}

// Created describes the persisted record. Exactly one of the entity pointers
// is set, matching Entity.
type Created struct {
	Entity         EntityType
	ID             int64
	Transaction    *store.Transaction
	AccountBalance *decimal.Decimal
	Account        *store.Account
	CreditCard     *store.CreditCard
	Goal           *store.Goal
	Investment     *store.Investment
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindMoney
	kindInteger
	kindDate
	kindID
	kindTransactionType
	kindInvestmentType
)

type fieldSpec struct {
	name     string
	kind     fieldKind
	required bool
}

// entityFields is the complete set of fields the model may set per entity.
// Anything else in the extracted data, including id and user_id, is ignored.
var entityFields = map[EntityType][]fieldSpec{
	EntityTransaction: {
		{name: "description", kind: kindText, required: true},
		{name: "amount", kind: kindMoney, required: true},
		{name: "type", kind: kindTransactionType, required: true},
		{name: "date", kind: kindDate},
		{name: "category", kind: kindText},
		{name: "account_id", kind: kindID},
	},
	EntityAccount: {
		{name: "name", kind: kindText, required: true},
		{name: "bank", kind: kindText, required: true},
		{name: "balance", kind: kindMoney},
		{name: "investments", kind: kindMoney},
		{name: "color", kind: kindText},
	},
	EntityCreditCard: {
		{name: "name", kind: kindText, required: true},
		{name: "bank", kind: kindText, required: true},
		{name: "limit", kind: kindInteger, required: true},
		{name: "used", kind: kindInteger},
		{name: "color", kind: kindText},
	},
	EntityGoal: {
		{name: "name", kind: kindText, required: true},
		{name: "target", kind: kindMoney, required: true},
		{name: "current", kind: kindMoney},
		{name: "color", kind: kindText},
	},
	EntityInvestment: {
		{name: "name", kind: kindText, required: true},
		{name: "type", kind: kindInvestmentType, required: true},
		{name: "value", kind: kindMoney, required: true},
		{name: "return_rate", kind: kindMoney},
		{name: "color", kind: kindText},
	},
}

type Materializer struct {
	writer EntityWriter
	now    func() time.Time
}

func NewMaterializer(writer EntityWriter, now func() time.Time) *Materializer {
	if now == nil {
		now = time.Now
	}
	return &Materializer{writer: writer, now: now}
}

// Materialize validates the extracted fields against the entity whitelist and
// writes the record for callerID. Nothing is written when validation fails.
func (m *Materializer) Materialize(ctx context.Context, entity ExtractedEntity, callerID int64) (Created, error) {
	if callerID <= 0 {
		return Created{}, fmt.Errorf("%w: caller id must be positive", ErrPromptContext)
	}
	specs, ok := entityFields[entity.Type]
	if !ok {
		return Created{}, fmt.Errorf("%w: unknown entity type %q", ErrExtractionFailed, entity.Type)
	}
	values, err := coerceFields(entity.Type, specs, entity.Data)
	if err != nil {
		return Created{}, err
	}

	switch entity.Type {
	case EntityTransaction:
		return m.createTransaction(ctx, values, callerID)
	case EntityAccount:
		account, err := m.writer.CreateAccount(ctx, store.CreateAccountInput{
			UserID:      callerID,
			Name:        values.text("name"),
			Bank:        values.text("bank"),
			Balance:     values.money("balance").Round(2),
			Investments: values.money("investments").Round(2),
			Color:       values.text("color"),
		})
		if err != nil {
			return Created{}, persistError(entity.Type, err)
		}
		return Created{Entity: entity.Type, ID: account.ID, Account: &account}, nil
	case EntityCreditCard:
		card, err := m.writer.CreateCreditCard(ctx, store.CreateCreditCardInput{
			UserID: callerID,
			Name:   values.text("name"),
			Bank:   values.text("bank"),
			Used:   values.integer("used"),
			Limit:  values.integer("limit"),
			Color:  values.text("color"),
		})
		if err != nil {
			return Created{}, persistError(entity.Type, err)
		}
		return Created{Entity: entity.Type, ID: card.ID, CreditCard: &card}, nil
	case EntityGoal:
		goal, err := m.writer.CreateGoal(ctx, store.CreateGoalInput{
			UserID:  callerID,
			Name:    values.text("name"),
			Target:  values.money("target").Round(2),
			Current: values.money("current").Round(2),
			Color:   values.text("color"),
		})
		if err != nil {
			return Created{}, persistError(entity.Type, err)
		}
		return Created{Entity: entity.Type, ID: goal.ID, Goal: &goal}, nil
	default:
		investment, err := m.writer.CreateInvestment(ctx, store.CreateInvestmentInput{
			UserID:     callerID,
			Name:       values.text("name"),
			Type:       values.text("type"),
			Value:      values.money("value").Round(2),
			ReturnRate: values.money("return_rate").Round(2),
			Color:      values.text("color"),
		})
		if err != nil {
			return Created{}, persistError(entity.Type, err)
		}
		return Created{Entity: entity.Type, ID: investment.ID, Investment: &investment}, nil
	}
}

func (m *Materializer) createTransaction(ctx context.Context, values fieldValues, callerID int64) (Created, error) {
	txType := values.text("type")
	date, ok := values.date("date")
	if !ok {
		now := m.now()
		date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	category := values.text("category")
	if category == "" {
		category = store.DefaultCategory
	}

	result, err := m.writer.CreateTransaction(ctx, store.CreateTransactionInput{
		UserID:      callerID,
		Description: values.text("description"),
		Category:    category,
		Date:        date,
		Amount:      store.SignedAmount(txType, values.money("amount")).Round(2),
		Type:        txType,
		AccountID:   values.id("account_id"),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Created{}, &EntityValidationError{Entity: EntityTransaction, Invalid: []string{"account_id"}}
		}
		return Created{}, persistError(EntityTransaction, err)
	}
	txn := result.Transaction
	return Created{
		Entity:         EntityTransaction,
		ID:             txn.ID,
		Transaction:    &txn,
		AccountBalance: result.AccountBalance,
	}, nil
}

func persistError(entity EntityType, err error) error {
	return fmt.Errorf("%w: create %s: %w", ErrPersistFailed, entity, err)
}

type fieldValues map[string]any

func (v fieldValues) text(name string) string {
	value, _ := v[name].(string)
	return value
}

func (v fieldValues) money(name string) decimal.Decimal {
	value, _ := v[name].(decimal.Decimal)
	return value
}

func (v fieldValues) integer(name string) int64 {
	value, _ := v[name].(int64)
	return value
}

func (v fieldValues) date(name string) (time.Time, bool) {
	value, ok := v[name].(time.Time)
	return value, ok
}

func (v fieldValues) id(name string) *int64 {
	value, ok := v[name].(int64)
	if !ok {
		return nil
	}
	return &value
}

func coerceFields(entity EntityType, specs []fieldSpec, data map[string]any) (fieldValues, error) {
	values := fieldValues{}
	verr := &EntityValidationError{Entity: entity}
	for _, spec := range specs {
		raw, present := data[spec.name]
		if !present || isBlank(raw) {
			if spec.required {
				verr.Missing = append(verr.Missing, spec.name)
			}
			continue
		}
		value, err := coerce(spec.kind, raw)
		if err != nil {
			// An unreadable date falls back to today instead of failing.
			if spec.kind == kindDate {
				continue
			}
			verr.Invalid = append(verr.Invalid, spec.name)
			continue
		}
		values[spec.name] = value
	}
	if !verr.empty() {
		return nil, verr
	}
	return values, nil
}

func isBlank(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	default:
		return false
	}
}

func coerce(kind fieldKind, raw any) (any, error) {
	switch kind {
	case kindText:
		switch typed := raw.(type) {
		case string:
			return strings.TrimSpace(typed), nil
		case json.Number:
			return typed.String(), nil
		default:
			return nil, fmt.Errorf("expected text, got %T", raw)
		}
	case kindMoney:
		return parseMoney(raw)
	case kindInteger:
		amount, err := parseMoney(raw)
		if err != nil {
			return nil, err
		}
		return amount.Round(0).IntPart(), nil
	case kindID:
		return parseID(raw)
	case kindDate:
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected date text, got %T", raw)
		}
		return parseDate(text)
	case kindTransactionType:
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected transaction type text, got %T", raw)
		}
		return normalizeTransactionType(text)
	case kindInvestmentType:
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected investment type text, got %T", raw)
		}
		return normalizeInvestmentType(text)
	default:
		return nil, fmt.Errorf("unsupported field kind %d", kind)
	}
}

// parseMoney accepts JSON numbers and strings such as "50", "-50.5", "50,00",
// "1.234,56" and "R$ 50".
func parseMoney(raw any) (decimal.Decimal, error) {
	switch typed := raw.(type) {
	case json.Number:
		return decimal.NewFromString(typed.String())
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return decimal.Decimal{}, fmt.Errorf("invalid amount %v", typed)
		}
		return decimal.NewFromFloat(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	case int64:
		return decimal.NewFromInt(typed), nil
	case string:
		return parseMoneyText(typed)
	default:
		return decimal.Decimal{}, fmt.Errorf("expected amount, got %T", raw)
	}
}

// dotGroupedPattern matches amounts that only use dots as thousands
// separators, such as "1.234" or "12.345.678".
var dotGroupedPattern = regexp.MustCompile(`^[-+]?[1-9][0-9]{0,2}(\.[0-9]{3})+$`)

func parseMoneyText(text string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "R$"), "r$")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, cleaned)
	switch {
	case strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case dotGroupedPattern.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount %q", text)
	}
	return decimal.NewFromString(cleaned)
}

func parseID(raw any) (int64, error) {
	var id int64
	switch typed := raw.(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, fmt.Errorf("parse id %q: %w", typed, err)
		}
		id = parsed
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("id %v is not an integer", typed)
		}
		id = int64(typed)
	case int64:
		id = typed
	case int:
		id = int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse id %q: %w", typed, err)
		}
		id = parsed
	default:
		return 0, fmt.Errorf("expected id, got %T", raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d must be positive", id)
	}
	return id, nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339, "2006-01-02 15:04:05"}

func parseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, text)
		if err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", text)
}

func normalizeTransactionType(text string) (string, error) {
	switch fold(strings.TrimSpace(text)) {
	case "income", "receita", "entrada", "credito":
		return store.TransactionIncome, nil
	case "expense", "despesa", "gasto", "saida", "debito":
		return store.TransactionExpense, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", text)
	}
}

func normalizeInvestmentType(text string) (string, error) {
	key := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(fold(text))), " ")
	switch key {
	case "renda fixa", "fixa", "fixed", "fixed income":
		return store.InvestmentFixedIncome, nil
	case "renda variavel", "variavel", "variable", "variable income", "acoes", "stocks":
		return store.InvestmentVariableIncome, nil
	default:
		return "", fmt.Errorf("unknown investment type %q", text)
	}
}
