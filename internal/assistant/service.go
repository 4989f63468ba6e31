package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cashplan/cashplan/internal/auth"
	"github.com/cashplan/cashplan/internal/llm"
	"github.com/cashplan/cashplan/internal/observability"
	"github.com/cashplan/cashplan/internal/query"
	"github.com/cashplan/cashplan/internal/sqlguard"
	"github.com/cashplan/cashplan/internal/store"
)

const (
	msgUnavailable      = "Desculpe, não consegui processar sua solicitação agora. Tente novamente em instantes."
	msgGenerationFailed = "Desculpe, o assistente está indisponível no momento. Tente novamente em instantes."
	msgRejected         = "Não posso executar essa consulta por motivos de segurança (%s)."
	msgExecutionFailed  = "Desculpe, não consegui executar a consulta para responder à sua pergunta."
	msgPersistFailed    = "Desculpe, não consegui salvar o registro. Nada foi alterado."
	msgRephrase         = "Não entendi os dados que você quer registrar. Pode reformular o pedido?"
	msgRefused          = "Não consegui registrar: %s"
	msgMissingFields    = "Faltam informações para registrar %s: %s."
	msgInvalidFields    = "Valores inválidos para %s: %s."
	auditTimeout        = 2 * time.Second
)

var entityLabels = map[EntityType]string{
	EntityTransaction: "a transação",
	EntityAccount:     "a conta",
	EntityCreditCard:  "o cartão de crédito",
	EntityGoal:        "a meta",
	EntityInvestment:  "o investimento",
}

type Store interface {
	EntityWriter
	DescribeSchema(ctx context.Context) (string, error)
	ListCategories(ctx context.Context, userID int64) ([]store.Category, error)
	SeedDefaultCategories(ctx context.Context, userID int64) error
	RecordAudit(ctx context.Context, in store.AuditRecord) error
}

type Options struct {
	ScopeCheck        bool
	ExposeStoreErrors bool
	AuditEnabled      bool
	MaxRows           int
	QueryTimeout      time.Duration
	Currency          string
	Now               func() time.Time
}

type ChatRequest struct {
	Prompt string
	Caller auth.Identity
}

type ChatResponse struct {
	Response     string           `json:"response"`
	SQLQuery     string           `json:"sql_query,omitempty"`
	Data         []map[string]any `json:"data,omitempty"`
	Error        bool             `json:"error,omitempty"`
	Intent       Intent           `json:"intent"`
	InvocationID string           `json:"invocation_id"`
}

type Service struct {
	store        Store
	executor     query.Executor
	gateway      *llm.Gateway
	scope        *sqlguard.ScopeChecker
	materializer *Materializer
	composer     *Composer
	opts         Options
	logger       *slog.Logger
}

func NewService(st Store, executor query.Executor, gateway *llm.Gateway, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 200
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = "R$"
	}
	return &Service{
		store:        st,
		executor:     executor,
		gateway:      gateway,
		scope:        sqlguard.NewScopeChecker(),
		materializer: NewMaterializer(st, opts.Now),
		composer:     NewComposer(gateway, opts.Currency, logger),
		opts:         opts,
		logger:       logger,
	}
}

// invocation collects what one Chat call did for logging and audit.
type invocation struct {
	resp         ChatResponse
	generatedSQL string
	err          error
}

// Chat runs one assistant invocation. Failures never escape: they are turned
// into a response with Error set.
func (s *Service) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	start := time.Now()
	classification := ClassifyDetailed(req.Prompt)
	inv := &invocation{resp: ChatResponse{
		Intent:       classification.Intent,
		InvocationID: uuid.NewString(),
	}}

	logger := s.logger.With(
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("invocation_id", inv.resp.InvocationID),
		slog.Int64("user_id", req.Caller.UserID),
		slog.String("intent", string(classification.Intent)),
	)
	logger.DebugContext(ctx, "assistant prompt received", slog.String("prompt", req.Prompt))

	switch {
	case !req.Caller.Valid():
		inv.err = fmt.Errorf("%w: caller identity is missing", ErrPromptContext)
	case classification.Intent == IntentQuery:
		inv.err = s.runQuery(ctx, req, inv)
	case classification.Intent == IntentInsertion:
		inv.err = s.runInsertion(ctx, req, inv)
	default:
		inv.resp.Response = ConversationalReply(classification.Casual, req.Caller.Name)
	}

	outcome := "ok"
	if inv.err != nil {
		inv.resp.Response, outcome = s.describeFailure(inv.err)
		inv.resp.Error = true
		inv.resp.Data = nil
	}
	observability.ObserveAssistantRequest(string(classification.Intent), outcome)

	if classification.Intent != IntentConversational {
		s.recordAudit(ctx, logger, req.Caller.UserID, inv, outcome)
	}

	attrs := []any{
		slog.String("outcome", outcome),
		slog.String("duration", time.Since(start).String()),
	}
	if inv.err != nil {
		attrs = append(attrs, slog.Any("error", inv.err))
		logger.WarnContext(ctx, "assistant request failed", attrs...)
	} else {
		logger.InfoContext(ctx, "assistant request", attrs...)
	}
	return inv.resp
}

func (s *Service) runQuery(ctx context.Context, req ChatRequest, inv *invocation) error {
	schema, err := s.store.DescribeSchema(ctx)
	if err != nil {
		return fmt.Errorf("%w: describe schema: %v", ErrPromptContext, err)
	}
	prompt, err := BuildQueryPrompt(QueryPromptInput{
		Schema:   schema,
		UserID:   req.Caller.UserID,
		UserName: req.Caller.Name,
		Question: req.Prompt,
		MaxRows:  s.opts.MaxRows,
	})
	if err != nil {
		return err
	}

	conv := llm.NewConversation()
	raw, err := s.gateway.Generate(ctx, conv, prompt)
	if err != nil {
		return err
	}
	inv.generatedSQL = raw

	verdict := sqlguard.Validate(raw)
	if !verdict.OK {
		observability.IncrementSQLRejection("validator")
		return &RejectionError{Stage: "validator", Reason: verdict.Reason}
	}
	inv.generatedSQL = verdict.SQL
	if s.opts.ScopeCheck {
		if err := s.scope.Check(verdict.SQL, req.Caller.UserID); err != nil {
			observability.IncrementSQLRejection("scope")
			reason := err.Error()
			var scopeErr *sqlguard.ScopeError
			if errors.As(err, &scopeErr) {
				reason = scopeErr.Reason
			}
			return &RejectionError{Stage: "scope", Reason: reason}
		}
	}
	inv.resp.SQLQuery = verdict.SQL

	result, err := s.executor.Execute(ctx, query.Request{
		SQL:     verdict.SQL,
		MaxRows: s.opts.MaxRows,
		Timeout: s.opts.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}
	observability.ObserveQueryRows(len(result.Rows))

	inv.resp.Data = result.Rows
	inv.resp.Response = s.composer.ComposeQuery(ctx, conv, verdict.SQL, result)
	return nil
}

func (s *Service) runInsertion(ctx context.Context, req ChatRequest, inv *invocation) error {
	schema, err := s.store.DescribeSchema(ctx)
	if err != nil {
		return fmt.Errorf("%w: describe schema: %v", ErrPromptContext, err)
	}
	prompt, err := BuildInsertPrompt(InsertPromptInput{
		Schema:     schema,
		UserID:     req.Caller.UserID,
		Today:      s.opts.Now(),
		Categories: s.categories(ctx, req.Caller.UserID),
		Question:   req.Prompt,
	})
	if err != nil {
		return err
	}

	raw, err := s.gateway.Generate(ctx, llm.NewConversation(), prompt)
	if err != nil {
		return err
	}
	entity, err := Extract(raw)
	if err != nil {
		return err
	}
	created, err := s.materializer.Materialize(ctx, entity, req.Caller.UserID)
	if err != nil {
		return err
	}
	observability.IncrementEntityCreated(string(created.Entity))

	inv.resp.Data = []map[string]any{created.Fields()}
	inv.resp.Response = s.composer.ComposeInsert(created)
	return nil
}

// categories returns the caller's categories, seeding the defaults the first
// time. Lookup failures degrade to the default names.
func (s *Service) categories(ctx context.Context, userID int64) []store.Category {
	categories, err := s.store.ListCategories(ctx, userID)
	if err == nil && len(categories) == 0 {
		if err = s.store.SeedDefaultCategories(ctx, userID); err == nil {
			categories, err = s.store.ListCategories(ctx, userID)
		}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "load categories failed, using defaults",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int64("user_id", userID),
			slog.Any("error", err),
		)
		return nil
	}
	return categories
}

func (s *Service) describeFailure(err error) (string, string) {
	var (
		rejection  *RejectionError
		refusal    *ModelRefusalError
		validation *EntityValidationError
	)
	switch {
	case errors.As(err, &rejection):
		return fmt.Sprintf(msgRejected, rejection.Reason), "rejected"
	case errors.As(err, &refusal):
		return fmt.Sprintf(msgRefused, refusal.Reason), "refused"
	case errors.As(err, &validation):
		return validationMessage(validation), "invalid_entity"
	case errors.Is(err, ErrExtractionFailed):
		return msgRephrase, "extraction_failed"
	case errors.Is(err, ErrGenerationFailed):
		return msgGenerationFailed, "generation_failed"
	case errors.Is(err, ErrExecutionFailed):
		if s.opts.ExposeStoreErrors {
			detail := strings.TrimPrefix(err.Error(), ErrExecutionFailed.Error()+": ")
			return msgExecutionFailed + " Detalhes do erro: " + detail, "execution_failed"
		}
		return msgExecutionFailed, "execution_failed"
	case errors.Is(err, ErrPersistFailed):
		return msgPersistFailed, "persist_failed"
	case errors.Is(err, ErrPromptContext):
		return msgUnavailable, "prompt_context"
	default:
		return msgUnavailable, "internal"
	}
}

func validationMessage(err *EntityValidationError) string {
	label := entityLabels[err.Entity]
	if label == "" {
		label = "o registro"
	}
	parts := make([]string, 0, 2)
	if len(err.Missing) > 0 {
		parts = append(parts, fmt.Sprintf(msgMissingFields, label, strings.Join(err.Missing, ", ")))
	}
	if len(err.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf(msgInvalidFields, label, strings.Join(err.Invalid, ", ")))
	}
	return strings.Join(parts, " ")
}

func (s *Service) recordAudit(ctx context.Context, logger *slog.Logger, userID int64, inv *invocation, outcome string) {
	if !s.opts.AuditEnabled || userID <= 0 {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	record := store.AuditRecord{
		UserID:       userID,
		InvocationID: inv.resp.InvocationID,
		Intent:       string(inv.resp.Intent),
		GeneratedSQL: inv.generatedSQL,
		Verdict:      outcome,
	}
	if inv.err != nil {
		record.Reason = inv.err.Error()
	}
	if err := s.store.RecordAudit(auditCtx, record); err != nil {
		logger.WarnContext(ctx, "record assistant audit failed", slog.Any("error", err))
	}
}
