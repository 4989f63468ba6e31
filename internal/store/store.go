package store

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("store: not found")

const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"

	InvestmentFixedIncome    = "Renda Fixa"
	InvestmentVariableIncome = "Renda Variável"

	DefaultCategory = "Outros"
)

// OwnedTables lists the user-owned tables generated queries may read. Every
// one of them carries a user_id column.
var OwnedTables = []string{
	"accounts",
	"categories",
	"credit_cards",
	"goals",
	"investments",
	"transactions",
}

func IsOwnedTable(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, table := range OwnedTables {
		if table == name {
			return true
		}
	}
	return false
}

type User struct {
	ID        int64
	Username  string
	Email     string
	FullName  string
	IsActive  bool
	CreatedAt time.Time
}

func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(u.Username)
}

type Account struct {
	ID          int64
	UserID      int64
	Name        string
	Bank        string
	Balance     decimal.Decimal
	Investments decimal.Decimal
	Color       string
	CreatedAt   time.Time
}

type CreateAccountInput struct {
	UserID      int64
	Name        string
	Bank        string
	Balance     decimal.Decimal
	Investments decimal.Decimal
	Color       string
}

type CreditCard struct {
	ID        int64
	UserID    int64
	Name      string
	Bank      string
	Used      int64
	Limit     int64
	Color     string
	CreatedAt time.Time
}

type CreateCreditCardInput struct {
	UserID int64
	Name   string
	Bank   string
	Used   int64
	Limit  int64
	Color  string
}

type Transaction struct {
	ID          int64
	UserID      int64
	Description string
	Category    string
	Date        time.Time
	Amount      decimal.Decimal
	Type        string
	AccountID   *int64
	CreatedAt   time.Time
}

type CreateTransactionInput struct {
	UserID      int64
	Description string
	Category    string
	Date        time.Time
	Amount      decimal.Decimal
	Type        string
	AccountID   *int64
}

type CreateTransactionResult struct {
	Transaction Transaction
	// AccountBalance is the owning account balance after the adjustment. It is
	// nil when the transaction has no owning account.
	AccountBalance *decimal.Decimal
}

// SignedAmount returns the amount with the sign implied by the transaction
// type: income is positive and expense is negative.
func SignedAmount(transactionType string, amount decimal.Decimal) decimal.Decimal {
	if transactionType == TransactionExpense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

type Investment struct {
	ID         int64
	UserID     int64
	Name       string
	Type       string
	Value      decimal.Decimal
	ReturnRate decimal.Decimal
	Color      string
	CreatedAt  time.Time
}

type CreateInvestmentInput struct {
	UserID     int64
	Name       string
	Type       string
	Value      decimal.Decimal
	ReturnRate decimal.Decimal
	Color      string
}

type Goal struct {
	ID        int64
	UserID    int64
	Name      string
	Target    decimal.Decimal
	Current   decimal.Decimal
	Color     string
	CreatedAt time.Time
}

type CreateGoalInput struct {
	UserID  int64
	Name    string
	Target  decimal.Decimal
	Current decimal.Decimal
	Color   string
}

type Category struct {
	ID        int64
	UserID    int64
	Name      string
	Type      string
	IsDefault bool
}

type DefaultCategoryDef struct {
	Name string
	Type string
}

var DefaultCategories = []DefaultCategoryDef{
	{Name: "Salário", Type: TransactionIncome},
	{Name: "Freelance", Type: TransactionIncome},
	{Name: "Investimentos", Type: TransactionIncome},
	{Name: "Bônus", Type: TransactionIncome},
	{Name: "Presente", Type: TransactionIncome},
	{Name: "Venda", Type: TransactionIncome},
	{Name: "Outros", Type: TransactionIncome},
	{Name: "Alimentação", Type: TransactionExpense},
	{Name: "Transporte", Type: TransactionExpense},
	{Name: "Moradia", Type: TransactionExpense},
	{Name: "Saúde", Type: TransactionExpense},
	{Name: "Educação", Type: TransactionExpense},
	{Name: "Lazer", Type: TransactionExpense},
	{Name: "Compras", Type: TransactionExpense},
	{Name: "Contas", Type: TransactionExpense},
	{Name: "Vestuário", Type: TransactionExpense},
	{Name: "Outros", Type: TransactionExpense},
}

type AuditRecord struct {
	UserID       int64
	InvocationID string
	Intent       string
	GeneratedSQL string
	Verdict      string
	Reason       string
}
