package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tinoosan/tillbook/internal/service/ops"
)

const roleAdmin = "admin"

// AuthConfig enables bearer auth when Secret is set.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// Claims carry the actor's role next to the registered claims. The subject is the actor name.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type actorKey struct{}

// localActor is who acts when auth is disabled: a trusted local operator.
var localActor = ops.Actor{Name: "local", Role: roleAdmin}

func actorFrom(ctx context.Context) ops.Actor {
	if a, ok := ctx.Value(actorKey{}).(ops.Actor); ok {
		return a
	}
	return localActor
}

func publicPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(p, "/v1/dictionary/")
}

// authenticate verifies Authorization: Bearer <HS256 JWT> and stores the
// actor in the context. With no secret configured every request acts as
// localActor.
func authenticate(cfg AuthConfig, l *slog.Logger) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Secret == "" || publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
				writeErr(w, http.StatusUnauthorized, "authorization header must be Bearer {token}", "unauthorized")
				return
			}
			var claims Claims
			_, err := parser.ParseWithClaims(strings.TrimSpace(tok), &claims, func(*jwt.Token) (any, error) {
				return []byte(cfg.Secret), nil
			})
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token has expired"
				}
				l.Warn("rejected token", "path", r.URL.Path, "err", err)
				writeErr(w, http.StatusUnauthorized, msg, "unauthorized")
				return
			}
			if claims.Subject == "" {
				writeErr(w, http.StatusUnauthorized, "token has no subject", "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), actorKey{}, ops.Actor{Name: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole lets only actors with role through.
func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actorFrom(r.Context()).Role != role {
				writeErr(w, http.StatusForbidden, "requires role "+role, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
