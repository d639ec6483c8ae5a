package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
)

var ErrBadToken = errors.New("invalid token")

// Claims carries the authenticated actor. The identity collaborator
// issues these tokens; the core trusts the (subject, role) pair and
// performs no credential checks itself.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func ParseToken(raw, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrBadToken
	}
	return c, nil
}

// MakeToken mints an HS256 token for the given actor. Used by the seed
// tool and tests; production tokens come from the identity service.
func MakeToken(actor scheduling.Actor, secret string) (string, error) {
	c := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: actor.ID.String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

const actorKey contextKey = "actor"

// AuthMiddleware extracts the bearer token and stores the actor in the
// request context. Requests without a valid token are rejected.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer <token> is required")
				return
			}

			claims, err := ParseToken(raw, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			actorID, err := uuid.Parse(claims.Subject)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token subject must be a UUID")
				return
			}

			role := scheduling.Role(claims.Role)
			switch role {
			case scheduling.RolePatient, scheduling.RoleDoctor, scheduling.RoleAdmin:
			default:
				writeError(w, http.StatusUnauthorized, "invalid_token", "unknown role")
				return
			}

			actor := scheduling.Actor{ID: actorID, Role: role}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom retrieves the authenticated actor from the context.
func ActorFrom(ctx context.Context) (scheduling.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(scheduling.Actor)
	return actor, ok
}

// RequireRole rejects requests whose actor is not one of the given roles.
func RequireRole(roles ...scheduling.Role) func(http.Handler) http.Handler {
	allowed := make(map[scheduling.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing_actor", "request is not authenticated")
				return
			}
			if !allowed[actor.Role] {
				writeError(w, http.StatusForbidden, "forbidden", "role not permitted for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
