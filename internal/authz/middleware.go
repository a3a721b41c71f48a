package authz

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
)

const (
	WebhookHMACHeader  = "X-Shopify-Hmac-Sha256"
	WebhookTopicHeader = "X-Shopify-Topic"
	WebhookShopHeader  = "X-Shopify-Shop-Domain"

	maxWebhookBody = 1 << 20
)

var ErrMissingShop = errors.New("session token has no shop destination")

// SessionClaims are the claims of an embedded-app session token.
type SessionClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// Shop is the tenant named by the token's destination URL.
func (c SessionClaims) Shop() (string, error) {
	u, err := url.Parse(c.Dest)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", ErrMissingShop
	}
	return u.Host, nil
}

// ParseSessionToken verifies an HS256 session token signed with secret.
// When audience is set, the token must be issued for it.
func ParseSessionToken(tokenString, secret, audience string) (SessionClaims, error) {
	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return claims, err
	}
	if !token.Valid {
		return claims, jwt.ErrSignatureInvalid
	}
	if audience != "" && !claims.VerifyAudience(audience, true) {
		return claims, jwt.ErrTokenInvalidAudience
	}
	return claims, nil
}

// SessionMiddleware requires a Bearer session token and puts its shop on the context.
func SessionMiddleware(secret, audience string, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "authz").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}
			claims, err := ParseSessionToken(parts[1], secret, audience)
			if err != nil {
				logger.Debug().Err(err).Msg("rejected session token")
				http.Error(w, "Invalid session token", http.StatusUnauthorized)
				return
			}
			shop, err := claims.Shop()
			if err != nil {
				http.Error(w, "Missing shop in session token", http.StatusUnauthorized)
				return
			}
			ctx := WithIdentity(r.Context(), shop, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WebhookMiddleware verifies the base64 HMAC-SHA256 of the raw body and puts
// the sending shop on the context. The body is restored for the handler.
func WebhookMiddleware(secret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "authz").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				http.Error(w, "Failed to read body", http.StatusBadRequest)
				return
			}
			if !ValidWebhookSignature(body, r.Header.Get(WebhookHMACHeader), secret) {
				logger.Warn().Str("topic", r.Header.Get(WebhookTopicHeader)).Msg("webhook signature mismatch")
				http.Error(w, "Invalid webhook signature", http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := WithIdentity(r.Context(), strings.TrimSpace(r.Header.Get(WebhookShopHeader)), "")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidWebhookSignature compares signature against the HMAC of body in constant time.
func ValidWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), given)
}
