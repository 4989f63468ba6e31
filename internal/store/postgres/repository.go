package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cashplan/cashplan/internal/store"
)

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, userID int64) (store.User, error) {
	query := `
SELECT id, username, email, COALESCE(full_name, ''), is_active, created_at
FROM users
WHERE id = $1`

	var user store.User
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *Repository) UserByAPIKeyHash(ctx context.Context, keyHash string) (store.User, error) {
	query := `
SELECT u.id, u.username, u.email, COALESCE(u.full_name, ''), u.is_active, u.created_at
FROM api_keys AS k
JOIN users AS u ON u.id = k.user_id
WHERE k.key_hash = $1 AND k.revoked_at IS NULL AND u.is_active`

	var user store.User
	if err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, fmt.Errorf("lookup api key: %w", err)
	}
	return user, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID int64) ([]store.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, name, type, is_default
FROM categories
WHERE user_id = $1
ORDER BY type ASC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	categories := make([]store.Category, 0)
	for rows.Next() {
		var category store.Category
		if err := rows.Scan(&category.ID, &category.UserID, &category.Name, &category.Type, &category.IsDefault); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return categories, nil
}

// SeedDefaultCategories inserts the default category set for a user. Existing
// rows are left untouched.
func (r *Repository) SeedDefaultCategories(ctx context.Context, userID int64) error {
	return r.WithTx(ctx, func(tx *TxRepository) error {
		for _, category := range store.DefaultCategories {
			if _, err := tx.q.ExecContext(ctx, `
INSERT INTO categories (user_id, name, type, is_default)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (user_id, name, type) DO NOTHING`, userID, category.Name, category.Type); err != nil {
				return fmt.Errorf("seed category %q: %w", category.Name, err)
			}
		}
		return nil
	})
}

func (r *Repository) RecordAudit(ctx context.Context, in store.AuditRecord) error {
	query := `
INSERT INTO assistant_audit (user_id, invocation_id, intent, generated_sql, verdict, reason)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query,
		in.UserID,
		in.InvocationID,
		in.Intent,
		nullIfEmpty(in.GeneratedSQL),
		in.Verdict,
		nullIfEmpty(in.Reason),
	); err != nil {
		return fmt.Errorf("record assistant audit: %w", err)
	}
	return nil
}

func (r *Repository) CreateTransaction(ctx context.Context, in store.CreateTransactionInput) (store.CreateTransactionResult, error) {
	var result store.CreateTransactionResult
	err := r.WithTx(ctx, func(tx *TxRepository) error {
		created, err := tx.CreateTransaction(ctx, in)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return store.CreateTransactionResult{}, err
	}
	return result, nil
}

func (r *Repository) CreateAccount(ctx context.Context, in store.CreateAccountInput) (store.Account, error) {
	query := `
INSERT INTO accounts (user_id, name, bank, balance, investments, color)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`

	account := store.Account{
		UserID:      in.UserID,
		Name:        in.Name,
		Bank:        in.Bank,
		Balance:     in.Balance,
		Investments: in.Investments,
		Color:       in.Color,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.UserID, in.Name, in.Bank, in.Balance, in.Investments, nullIfEmpty(in.Color),
	).Scan(&account.ID, &account.CreatedAt); err != nil {
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (r *Repository) CreateCreditCard(ctx context.Context, in store.CreateCreditCardInput) (store.CreditCard, error) {
	query := `
INSERT INTO credit_cards (user_id, name, bank, used, "limit", color)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`

	card := store.CreditCard{
		UserID: in.UserID,
		Name:   in.Name,
		Bank:   in.Bank,
		Used:   in.Used,
		Limit:  in.Limit,
		Color:  in.Color,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.UserID, in.Name, in.Bank, in.Used, in.Limit, nullIfEmpty(in.Color),
	).Scan(&card.ID, &card.CreatedAt); err != nil {
		return store.CreditCard{}, fmt.Errorf("create credit card: %w", err)
	}
	return card, nil
}

func (r *Repository) CreateGoal(ctx context.Context, in store.CreateGoalInput) (store.Goal, error) {
	query := `
INSERT INTO goals (user_id, name, target, current, color)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`

	goal := store.Goal{
		UserID:  in.UserID,
		Name:    in.Name,
		Target:  in.Target,
		Current: in.Current,
		Color:   in.Color,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.UserID, in.Name, in.Target, in.Current, nullIfEmpty(in.Color),
	).Scan(&goal.ID, &goal.CreatedAt); err != nil {
		return store.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	return goal, nil
}

func (r *Repository) CreateInvestment(ctx context.Context, in store.CreateInvestmentInput) (store.Investment, error) {
	query := `
INSERT INTO investments (user_id, name, type, value, return_rate, color)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`

	investment := store.Investment{
		UserID:     in.UserID,
		Name:       in.Name,
		Type:       in.Type,
		Value:      in.Value,
		ReturnRate: in.ReturnRate,
		Color:      in.Color,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.UserID, in.Name, in.Type, in.Value, in.ReturnRate, nullIfEmpty(in.Color),
	).Scan(&investment.ID, &investment.CreatedAt); err != nil {
		return store.Investment{}, fmt.Errorf("create investment: %w", err)
	}
	return investment, nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txRepo := &TxRepository{q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type TxRepository struct {
	q dbTX
}

// CreateTransaction inserts a transaction and, when it belongs to an account,
// applies the signed amount to that account's balance. The account row is
// locked first so concurrent inserts on the same account serialise.
func (r *TxRepository) CreateTransaction(ctx context.Context, in store.CreateTransactionInput) (store.CreateTransactionResult, error) {
	if in.Type != store.TransactionIncome && in.Type != store.TransactionExpense {
		return store.CreateTransactionResult{}, fmt.Errorf("invalid transaction type %q", in.Type)
	}
	amount := store.SignedAmount(in.Type, in.Amount).Round(2)

	if in.AccountID != nil {
		var locked int64
		if err := r.q.QueryRowContext(ctx, `
SELECT id
FROM accounts
WHERE id = $1 AND user_id = $2
FOR UPDATE`, *in.AccountID, in.UserID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.CreateTransactionResult{}, fmt.Errorf("account %d: %w", *in.AccountID, store.ErrNotFound)
			}
			return store.CreateTransactionResult{}, fmt.Errorf("lock account: %w", err)
		}
	}

	txn := store.Transaction{
		UserID:      in.UserID,
		Description: in.Description,
		Category:    in.Category,
		Date:        in.Date,
		Amount:      amount,
		Type:        in.Type,
		AccountID:   in.AccountID,
	}
	if err := r.q.QueryRowContext(ctx, `
INSERT INTO transactions (user_id, description, category, date, amount, type, account_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`,
		in.UserID, in.Description, in.Category, in.Date, amount, in.Type, in.AccountID,
	).Scan(&txn.ID, &txn.CreatedAt); err != nil {
		return store.CreateTransactionResult{}, fmt.Errorf("insert transaction: %w", err)
	}

	result := store.CreateTransactionResult{Transaction: txn}
	if in.AccountID == nil {
		return result, nil
	}

	var balance decimal.Decimal
	if err := r.q.QueryRowContext(ctx, `
UPDATE accounts
SET balance = balance + $1, updated_at = NOW()
WHERE id = $2 AND user_id = $3
RETURNING balance`, amount, *in.AccountID, in.UserID).Scan(&balance); err != nil {
		return store.CreateTransactionResult{}, fmt.Errorf("adjust account balance: %w", err)
	}
	result.AccountBalance = &balance
	return result, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
