// pkg/liquid/auth.go
package liquid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const authPath = "/realtime"

// TokenAuth реализует CredentialProvider для Liquid Tap:
// HS256-токен в заголовке X-Quoine-Auth.
type TokenAuth struct {
	tokenID string
	secret  []byte
	nonce   func() int64
}

// NewTokenAuth создаёт провайдер на основе API token id и секрета.
func NewTokenAuth(tokenID, secret string) (*TokenAuth, error) {
	if tokenID == "" || secret == "" {
		return nil, fmt.Errorf("liquid: token id and secret are required")
	}
	return &TokenAuth{
		tokenID: tokenID,
		secret:  []byte(secret),
		nonce:   func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// AuthPayload строит data-часть кадра аутентификации.
func (a *TokenAuth) AuthPayload() (json.RawMessage, error) {
	token, err := a.signToken()
	if err != nil {
		return nil, err
	}
	payload := struct {
		Path    string            `json:"path"`
		Headers map[string]string `json:"headers"`
	}{
		Path:    authPath,
		Headers: map[string]string{"X-Quoine-Auth": token},
	}
	return json.Marshal(payload)
}

func (a *TokenAuth) signToken() (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	claims := map[string]interface{}{
		"path":     authPath,
		"nonce":    a.nonce(),
		"token_id": a.tokenID,
	}

	hb, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("liquid: marshal token header: %w", err)
	}
	cb, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("liquid: marshal token claims: %w", err)
	}

	enc := base64.RawURLEncoding
	signing := enc.EncodeToString(hb) + "." + enc.EncodeToString(cb)

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(signing))
	return signing + "." + enc.EncodeToString(mac.Sum(nil)), nil
}
