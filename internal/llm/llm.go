package llm

import (
	"context"
	"errors"
)

var (
	ErrGenerationFailed  = errors.New("llm: generation failed")
	ErrEmptyConversation = errors.New("llm: conversation has no prior turns")
	ErrDisabled          = errors.New("llm: provider disabled")
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Turn struct {
	Role string
	Text string
}

// Conversation holds the turns of a single assistant invocation. It is not
// safe for concurrent use and is never shared between invocations.
type Conversation struct {
	turns []Turn
}

func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int {
	return len(c.turns)
}

func (c *Conversation) append(prompt, reply string) {
	c.turns = append(c.turns, Turn{Role: RoleUser, Text: prompt}, Turn{Role: RoleModel, Text: reply})
}

type Generator interface {
	Generate(ctx context.Context, history []Turn, prompt string) (string, error)
	Provider() string
}

type DisabledGenerator struct{}

func (DisabledGenerator) Generate(context.Context, []Turn, string) (string, error) {
	return "", ErrDisabled
}

func (DisabledGenerator) Provider() string {
	return "disabled"
}
