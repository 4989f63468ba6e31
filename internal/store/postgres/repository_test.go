package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/cashplan/cashplan/internal/store"
)

func TestGetUserReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, username, email, COALESCE(full_name, ''), is_active, created_at
FROM users
WHERE id = $1`)).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUser(context.Background(), 404)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetUser() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestUserByAPIKeyHash(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM api_keys AS k
JOIN users AS u ON u.id = k.user_id
WHERE k.key_hash = $1 AND k.revoked_at IS NULL AND u.is_active`)).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "full_name", "is_active", "created_at"}).
			AddRow(int64(7), "ana", "ana@example.com", "Ana Souza", true, now))

	user, err := repo.UserByAPIKeyHash(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("UserByAPIKeyHash() error = %v", err)
	}
	if user.ID != 7 || user.DisplayName() != "Ana Souza" {
		t.Fatalf("user = %+v", user)
	}
	assertSQLMock(t, mock)
}

func TestListCategories(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, user_id, name, type, is_default
FROM categories
WHERE user_id = $1
ORDER BY type ASC, name ASC`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "type", "is_default"}).
			AddRow(int64(1), int64(7), "Alimentação", "expense", true).
			AddRow(int64(2), int64(7), "Salário", "income", true))

	categories, err := repo.ListCategories(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(categories) != 2 || categories[0].Name != "Alimentação" {
		t.Fatalf("categories = %+v", categories)
	}
	assertSQLMock(t, mock)
}

func TestSeedDefaultCategoriesRunsInOneTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	for _, category := range store.DefaultCategories {
		mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO categories (user_id, name, type, is_default)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (user_id, name, type) DO NOTHING`)).
			WithArgs(int64(7), category.Name, category.Type).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := repo.SeedDefaultCategories(context.Background(), 7); err != nil {
		t.Fatalf("SeedDefaultCategories() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordAudit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO assistant_audit (user_id, invocation_id, intent, generated_sql, verdict, reason)
VALUES ($1, $2, $3, $4, $5, $6)`)).
		WithArgs(int64(7), "inv-1", "data-query", "SELECT 1", "rejected", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordAudit(context.Background(), store.AuditRecord{
		UserID:       7,
		InvocationID: "inv-1",
		Intent:       "data-query",
		GeneratedSQL: "SELECT 1",
		Verdict:      "rejected",
	})
	if err != nil {
		t.Fatalf("RecordAudit() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestCreateTransactionAdjustsAccountBalance(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	accountID := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id
FROM accounts
WHERE id = $1 AND user_id = $2
FOR UPDATE`)).
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO transactions (user_id, description, category, date, amount, type, account_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`)).
		WithArgs(int64(7), "Mercado", "Alimentação", date, decimal.RequireFromString("-50"), "expense", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(91), now))
	mock.ExpectQuery(regexp.QuoteMeta(`
UPDATE accounts
SET balance = balance + $1, updated_at = NOW()
WHERE id = $2 AND user_id = $3
RETURNING balance`)).
		WithArgs(decimal.RequireFromString("-50"), int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("950.00"))
	mock.ExpectCommit()

	result, err := repo.CreateTransaction(context.Background(), store.CreateTransactionInput{
		UserID:      7,
		Description: "Mercado",
		Category:    "Alimentação",
		Date:        date,
		Amount:      decimal.RequireFromString("50"),
		Type:        store.TransactionExpense,
		AccountID:   &accountID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if result.Transaction.ID != 91 {
		t.Fatalf("Transaction.ID = %d", result.Transaction.ID)
	}
	if !result.Transaction.Amount.Equal(decimal.RequireFromString("-50")) {
		t.Fatalf("Transaction.Amount = %s", result.Transaction.Amount)
	}
	if result.AccountBalance == nil || !result.AccountBalance.Equal(decimal.RequireFromString("950")) {
		t.Fatalf("AccountBalance = %v", result.AccountBalance)
	}
	assertSQLMock(t, mock)
}

func TestCreateTransactionWithoutAccountSkipsBalance(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WithArgs(int64(7), "Salário", "Salário", date, decimal.RequireFromString("5000"), "income", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(92), time.Now()))
	mock.ExpectCommit()

	result, err := repo.CreateTransaction(context.Background(), store.CreateTransactionInput{
		UserID:      7,
		Description: "Salário",
		Category:    "Salário",
		Date:        date,
		Amount:      decimal.RequireFromString("-5000"),
		Type:        store.TransactionIncome,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if result.AccountBalance != nil {
		t.Fatalf("AccountBalance = %v, want nil", result.AccountBalance)
	}
	assertSQLMock(t, mock)
}

func TestCreateTransactionUnknownAccountRollsBack(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	accountID := int64(99)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(99), int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.CreateTransaction(context.Background(), store.CreateTransactionInput{
		UserID:      7,
		Description: "Uber",
		Category:    "Transporte",
		Date:        time.Now(),
		Amount:      decimal.RequireFromString("20"),
		Type:        store.TransactionExpense,
		AccountID:   &accountID,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("CreateTransaction() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestCreateTransactionBalanceFailureRollsBack(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	accountID := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(93), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`SET balance = balance + $1`)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.CreateTransaction(context.Background(), store.CreateTransactionInput{
		UserID:      7,
		Description: "Aluguel",
		Category:    "Moradia",
		Date:        time.Now(),
		Amount:      decimal.RequireFromString("1500"),
		Type:        store.TransactionExpense,
		AccountID:   &accountID,
	})
	if err == nil {
		t.Fatal("expected balance adjustment error")
	}
	assertSQLMock(t, mock)
}

func TestCreateTransactionRejectsUnknownType(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.CreateTransaction(context.Background(), store.CreateTransactionInput{
		UserID: 7,
		Amount: decimal.RequireFromString("1"),
		Type:   "transfer",
	})
	if err == nil {
		t.Fatal("expected type error")
	}
	assertSQLMock(t, mock)
}

func TestCreateCreditCardQuotesLimitColumn(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO credit_cards (user_id, name, bank, used, "limit", color)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`)).
		WithArgs(int64(7), "Nubank Roxinho", "Nubank", int64(0), int64(5000), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(4), time.Now()))

	card, err := repo.CreateCreditCard(context.Background(), store.CreateCreditCardInput{
		UserID: 7,
		Name:   "Nubank Roxinho",
		Bank:   "Nubank",
		Limit:  5000,
	})
	if err != nil {
		t.Fatalf("CreateCreditCard() error = %v", err)
	}
	if card.ID != 4 || card.Limit != 5000 {
		t.Fatalf("card = %+v", card)
	}
	assertSQLMock(t, mock)
}

func TestCreateAccountGoalInvestment(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	zero := decimal.Zero

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO accounts (user_id, name, bank, balance, investments, color)`)).
		WithArgs(int64(7), "Conta Corrente", "Itaú", zero, zero, "#0055ff").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO goals (user_id, name, target, current, color)`)).
		WithArgs(int64(7), "Viagem", decimal.RequireFromString("8000"), zero, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO investments (user_id, name, type, value, return_rate, color)`)).
		WithArgs(int64(7), "Tesouro Selic", store.InvestmentFixedIncome, decimal.RequireFromString("1000"), zero, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), time.Now()))

	ctx := context.Background()
	if _, err := repo.CreateAccount(ctx, store.CreateAccountInput{UserID: 7, Name: "Conta Corrente", Bank: "Itaú", Color: "#0055ff"}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := repo.CreateGoal(ctx, store.CreateGoalInput{UserID: 7, Name: "Viagem", Target: decimal.RequireFromString("8000")}); err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	investment, err := repo.CreateInvestment(ctx, store.CreateInvestmentInput{
		UserID: 7,
		Name:   "Tesouro Selic",
		Type:   store.InvestmentFixedIncome,
		Value:  decimal.RequireFromString("1000"),
	})
	if err != nil {
		t.Fatalf("CreateInvestment() error = %v", err)
	}
	if investment.ID != 3 {
		t.Fatalf("investment.ID = %d", investment.ID)
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchemaRendersTables(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(describeSchemaQuery())).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("accounts", "id", "bigint").
			AddRow("accounts", "user_id", "bigint").
			AddRow("accounts", "balance", "numeric").
			AddRow("transactions", "id", "bigint").
			AddRow("transactions", "amount", "numeric"))

	got, err := repo.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	want := "Table accounts: id (bigint), user_id (bigint), balance (numeric)\n" +
		"Table transactions: id (bigint), amount (numeric)"
	if got != want {
		t.Fatalf("DescribeSchema() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchemaErrorsWhenEmpty(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}))

	if _, err := repo.DescribeSchema(context.Background()); err == nil {
		t.Fatal("expected error for empty schema")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
