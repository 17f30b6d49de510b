package extra

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"request_pipeline/internal/web"
)

// ClaimsKey is the context value key holding verified JWT claims.
const ClaimsKey = "auth.claims"

// JWTConfig configures the bearer token middleware.
type JWTConfig struct {
	// Secret is the HMAC signing key.
	Secret []byte

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Optional skips verification when no Authorization header is sent.
	Optional bool
}

// JWTProps are per-route options. Roles lists accepted values of the
// "role" claim; empty accepts any.
type JWTProps struct {
	Roles []string
}

// JWT verifies an HS256 bearer token and stores its claims on the context.
// Missing or invalid tokens produce 401, a role mismatch 403.
func JWT(cfg JWTConfig) Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }

	return func(ctx *web.Context, next Next, props any) error {
		raw := bearer(ctx.Get("Authorization"))
		if raw == "" {
			if cfg.Optional {
				return next()
			}
			return web.NewError(http.StatusUnauthorized, "missing bearer token")
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			return web.NewError(http.StatusUnauthorized, "invalid token").Wrap(err)
		}
		if cfg.Issuer != "" {
			iss, err := claims.GetIssuer()
			if err != nil || iss != cfg.Issuer {
				return web.NewError(http.StatusUnauthorized, "invalid token issuer")
			}
		}
		if p, ok := props.(JWTProps); ok && len(p.Roles) > 0 {
			role, _ := claims["role"].(string)
			if !contains(p.Roles, role) {
				return web.NewError(http.StatusForbidden, "")
			}
		}

		ctx.SetValue(ClaimsKey, claims)
		return next()
	}
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Headers sets static response headers given as map[string]string props.
func Headers() Handler {
	return func(ctx *web.Context, next Next, props any) error {
		headers, ok := props.(map[string]string)
		if !ok && props != nil {
			return errors.New("headers middleware expects map[string]string props")
		}
		for k, v := range headers {
			ctx.Set(k, v)
		}
		return next()
	}
}

// Builtins registers the bundled middleware under their public names.
func Builtins(r *Registry, jwtCfg JWTConfig) {
	if len(jwtCfg.Secret) > 0 {
		r.Register("auth.jwt", JWT(jwtCfg))
	}
	r.Register("headers", Headers())
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// SignHS256 issues a token for claims; used by tooling and tests.
func SignHS256(secret []byte, claims jwt.MapClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}
