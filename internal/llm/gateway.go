package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cashplan/cashplan/internal/observability"
)

type Gateway struct {
	generator Generator
	timeout   time.Duration
	logger    *slog.Logger
}

func NewGateway(generator Generator, timeout time.Duration, logger *slog.Logger) *Gateway {
	if generator == nil {
		generator = DisabledGenerator{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{generator: generator, timeout: timeout, logger: logger}
}

func (g *Gateway) Provider() string {
	return g.generator.Provider()
}

// Generate sends prompt on top of the turns already in conv and records the
// exchange on success.
func (g *Gateway) Generate(ctx context.Context, conv *Conversation, prompt string) (string, error) {
	if conv == nil {
		return "", fmt.Errorf("%w: conversation is required", ErrGenerationFailed)
	}
	return g.call(ctx, conv, prompt)
}

// Continue sends a follow-up that depends on the earlier exchange in conv.
func (g *Gateway) Continue(ctx context.Context, conv *Conversation, followUp string) (string, error) {
	if conv == nil || conv.Len() == 0 {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ErrEmptyConversation)
	}
	return g.call(ctx, conv, followUp)
}

func (g *Gateway) call(ctx context.Context, conv *Conversation, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", ErrGenerationFailed)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := g.generator.Generate(ctx, conv.Turns(), prompt)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("model returned empty output")
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		observability.ObserveLLMRequest(g.generator.Provider(), outcome, elapsed)
		g.logger.WarnContext(ctx, "llm generation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("provider", g.generator.Provider()),
			slog.String("outcome", outcome),
			slog.String("duration", elapsed.String()),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	observability.ObserveLLMRequest(g.generator.Provider(), "ok", elapsed)
	conv.append(prompt, reply)
	return reply, nil
}
