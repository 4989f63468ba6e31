package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type EntityType string

const (
	EntityTransaction EntityType = "transaction"
	EntityAccount     EntityType = "account"
	EntityCreditCard  EntityType = "credit_card"
	EntityGoal        EntityType = "goal"
	EntityInvestment  EntityType = "investment"
)

var entityAliases = map[string]EntityType{
	"transaction":  EntityTransaction,
	"transacao":    EntityTransaction,
	"account":      EntityAccount,
	"conta":        EntityAccount,
	"credit_card":  EntityCreditCard,
	"creditcard":   EntityCreditCard,
	"card":         EntityCreditCard,
	"cartao":       EntityCreditCard,
	"goal":         EntityGoal,
	"meta":         EntityGoal,
	"investment":   EntityInvestment,
	"investimento": EntityInvestment,
}

// ExtractedEntity is consumed once by the materializer. Numbers in Data are
// json.Number values.
type ExtractedEntity struct {
	Type EntityType
	Data map[string]any
}

var jsonFencePattern = regexp.MustCompile("(?i)```(json)?")

type extractionPayload struct {
	EntityType string         `json:"entity_type"`
	Data       map[string]any `json:"data"`
	Error      *string        `json:"error"`
}

func Extract(raw string) (ExtractedEntity, error) {
	text := jsonFencePattern.ReplaceAllString(raw, "")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ExtractedEntity{}, fmt.Errorf("%w: no json object in model output", ErrExtractionFailed)
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(text[start : end+1])))
	decoder.UseNumber()
	var payload extractionPayload
	if err := decoder.Decode(&payload); err != nil {
		return ExtractedEntity{}, fmt.Errorf("%w: decode model output: %v", ErrExtractionFailed, err)
	}

	if payload.Error != nil {
		reason := strings.TrimSpace(*payload.Error)
		if reason == "" {
			reason = "não foi possível identificar os dados do registro"
		}
		return ExtractedEntity{}, &ModelRefusalError{Reason: reason}
	}

	entityType, ok := normalizeEntityType(payload.EntityType)
	if !ok {
		return ExtractedEntity{}, fmt.Errorf("%w: unknown entity type %q", ErrExtractionFailed, payload.EntityType)
	}
	if payload.Data == nil {
		return ExtractedEntity{}, fmt.Errorf("%w: entity data is missing", ErrExtractionFailed)
	}
	return ExtractedEntity{Type: entityType, Data: payload.Data}, nil
}

func normalizeEntityType(value string) (EntityType, bool) {
	key := strings.NewReplacer("-", "_", " ", "_").Replace(fold(strings.TrimSpace(value)))
	entityType, ok := entityAliases[key]
	return entityType, ok
}
