package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyCaller contextKey = "caller_address"

var (
	ErrMissingToken   = errors.New("auth: missing bearer token")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrInvalidSubject = errors.New("auth: subject is not a 20-byte hex address")
)

// Verifier validates bearer tokens and resolves the caller address carried in
// the subject claim. Transitions authorize against that address inside the
// engines, so the gateway only has to establish who is calling.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Authenticate rejects requests without a valid HS256 bearer token and stores
// the caller address on the request context.
func (v *Verifier) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := v.callerFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Verifier) callerFromRequest(r *http.Request) ([20]byte, error) {
	var zero [20]byte
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return zero, ErrMissingToken
	}
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return zero, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return zero, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return zero, ErrInvalidSubject
	}
	return ParseAddress(subject)
}

// ParseAddress decodes a 20-byte address from its hex form, accepting an
// optional 0x prefix.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 20 {
		return addr, ErrInvalidSubject
	}
	copy(addr[:], raw)
	return addr, nil
}

// Caller returns the authenticated address stored by Authenticate.
func Caller(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	return caller, ok
}

// WithCaller injects a caller address into the context. Used by tests and by
// internal jobs that bypass HTTP.
func WithCaller(ctx context.Context, caller [20]byte) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}
