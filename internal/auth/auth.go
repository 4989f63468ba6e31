package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cashplan/cashplan/internal/store"
)

type Identity struct {
	UserID int64
	Name   string
}

func (i Identity) Valid() bool {
	return i.UserID > 0
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a comma-separated list of key:userID:name entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:userID:name", entry)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key", entry)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || userID <= 0 {
			return nil, fmt.Errorf("invalid static key entry %q: user id must be a positive integer", entry)
		}
		validator.keys[key] = Identity{UserID: userID, Name: strings.TrimSpace(parts[2])}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}

type KeyStore interface {
	UserByAPIKeyHash(ctx context.Context, keyHash string) (store.User, error)
}

// StoreAPIKeyValidator resolves keys against hashed credentials kept in the store.
type StoreAPIKeyValidator struct {
	store  KeyStore
	logger *slog.Logger
}

func NewStoreAPIKeyValidator(keys KeyStore, logger *slog.Logger) *StoreAPIKeyValidator {
	return &StoreAPIKeyValidator{store: keys, logger: logger}
}

func (v *StoreAPIKeyValidator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	if v == nil || v.store == nil || apiKey == "" {
		return Identity{}, false
	}
	user, err := v.store.UserByAPIKeyHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && v.logger != nil {
			v.logger.ErrorContext(ctx, "api key lookup failed", slog.Any("error", err))
		}
		return Identity{}, false
	}
	return Identity{UserID: user.ID, Name: user.DisplayName()}, true
}

type ChainValidator []APIKeyValidator

func (c ChainValidator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	for _, validator := range c {
		if validator == nil {
			continue
		}
		if identity, ok := validator.Validate(ctx, apiKey); ok {
			return identity, true
		}
	}
	return Identity{}, false
}

func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
