package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultCSRFTokenTTL = time.Hour
	csrfTokenPurpose    = "checkout"
)

var ErrCSRFSecretTooShort = errors.New("csrf secret must be at least 32 characters")

// TokenStore remembers issued tokens until they are consumed or expire. Consume reports
// true exactly once per stored key.
type TokenStore interface {
	Put(ctx context.Context, key string, ttl time.Duration) error
	Consume(ctx context.Context, key string) (bool, error)
}

type CSRFClaims struct {
	SessionKey string `json:"sid"`
	Purpose    string `json:"purpose"`
	jwt.RegisteredClaims
}

type CSRFToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CSRFService issues signed single-use tokens bound to an onboarding session id.
type CSRFService struct {
	secret []byte
	store  TokenStore
	ttl    time.Duration
	now    func() time.Time
}

func NewCSRFService(secret string, store TokenStore, ttl time.Duration) (*CSRFService, error) {
	if len(secret) < 32 {
		return nil, ErrCSRFSecretTooShort
	}
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	return &CSRFService{secret: []byte(secret), store: store, ttl: ttl, now: time.Now}, nil
}

func (service *CSRFService) Issue(ctx context.Context, sessionKey string) (CSRFToken, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return CSRFToken{}, ErrSessionIDRequired
	}

	now := service.now().UTC()
	expiresAt := now.Add(service.ttl)
	claims := CSRFClaims{
		SessionKey: sessionKey,
		Purpose:    csrfTokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sessionKey,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.secret)
	if err != nil {
		return CSRFToken{}, fmt.Errorf("sign csrf token: %w", err)
	}
	if err := service.store.Put(ctx, csrfTokenFingerprint(signed), service.ttl); err != nil {
		return CSRFToken{}, fmt.Errorf("store csrf token: %w", err)
	}
	return CSRFToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks the signature, purpose, expiry and session binding, then consumes the token
// so a second use fails.
func (service *CSRFService) Verify(ctx context.Context, rawToken string, sessionKey string) error {
	rawToken = strings.TrimSpace(rawToken)
	sessionKey = strings.TrimSpace(sessionKey)
	if rawToken == "" || sessionKey == "" {
		return ErrCSRFTokenInvalid
	}

	claims := &CSRFClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return service.secret, nil
	}, jwt.WithTimeFunc(service.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrCSRFTokenInvalid
	}
	if claims.Purpose != csrfTokenPurpose {
		return ErrCSRFTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(claims.SessionKey), []byte(sessionKey)) != 1 {
		return ErrCSRFTokenInvalid
	}

	consumed, err := service.store.Consume(ctx, csrfTokenFingerprint(rawToken))
	if err != nil {
		return fmt.Errorf("consume csrf token: %w", err)
	}
	if !consumed {
		return ErrCSRFTokenInvalid
	}
	return nil
}

func csrfTokenFingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte("whiteboar.csrf.v1:" + rawToken))
	return "csrf:" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// MemoryTokenStore is the single-process TokenStore used when no Redis URL is configured.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]time.Time), now: time.Now}
}

func (store *MemoryTokenStore) Put(_ context.Context, key string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	store.pruneLocked(now)
	store.entries[key] = now.Add(ttl)
	return nil
}

func (store *MemoryTokenStore) Consume(_ context.Context, key string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	expiresAt, ok := store.entries[key]
	if !ok {
		return false, nil
	}
	delete(store.entries, key)
	return store.now().Before(expiresAt), nil
}

func (store *MemoryTokenStore) pruneLocked(now time.Time) {
	for key, expiresAt := range store.entries {
		if !now.Before(expiresAt) {
			delete(store.entries, key)
		}
	}
}
