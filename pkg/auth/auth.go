// Package auth provides API key authentication for the parameter API.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// KeyValidator checks API keys against a configured set of users.
type KeyValidator struct {
	// keys maps the sha256 of a key to its user.
	keys map[[sha256.Size]byte]string
}

// NewKeyValidator creates a validator from a user to key map. Users with an
// empty key are ignored.
func NewKeyValidator(userKeys map[string]string) *KeyValidator {
	kv := &KeyValidator{keys: make(map[[sha256.Size]byte]string)}
	users := make([]string, 0, len(userKeys))
	for user := range userKeys {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		if key := userKeys[user]; key != "" {
			kv.keys[sha256.Sum256([]byte(key))] = user
		}
	}
	return kv
}

// Enabled reports whether any key is configured.
func (kv *KeyValidator) Enabled() bool {
	return kv != nil && len(kv.keys) > 0
}

// UserInfo is the authenticated caller.
type UserInfo struct {
	Username string `json:"username"`
}

// ValidateKey returns the user owning key.
func (kv *KeyValidator) ValidateKey(key string) (*UserInfo, error) {
	if key == "" {
		return nil, fmt.Errorf("empty API key")
	}
	sum := sha256.Sum256([]byte(key))
	for known, user := range kv.keys {
		if subtle.ConstantTimeCompare(sum[:], known[:]) == 1 {
			return &UserInfo{Username: user}, nil
		}
	}
	return nil, fmt.Errorf("invalid API key")
}

// Middleware rejects requests without a valid key. It passes every request
// through when no key is configured.
func (kv *KeyValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !kv.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		user, err := kv.ValidateKey(ExtractToken(r))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"err_msg": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(SetUserInContext(r.Context(), user)))
	})
}

// ExtractToken extracts the API key from an HTTP request.
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("key")
}

// ContextKey is the type for context keys.
type ContextKey string

// UserContextKey is the context key for user information.
const UserContextKey ContextKey = "user"

// GetUserFromContext retrieves user information from context.
func GetUserFromContext(ctx context.Context) *UserInfo {
	if user, ok := ctx.Value(UserContextKey).(*UserInfo); ok {
		return user
	}
	return nil
}

// SetUserInContext sets user information in context.
func SetUserInContext(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}
