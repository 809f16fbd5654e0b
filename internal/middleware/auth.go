package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/teamtasks/backend/domain"
)

const identityKey = "identity"

// JWTAuth verifies the bearer token and stores the resolved identity on the
// request. The identity's primary id is the provider username when present,
// otherwise the subject; stored assignment data was written under both.
func JWTAuth(secret string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			ctx.SetUserValue(identityKey, identityFromClaims(claims))
			next(ctx)
		}
	}
}

// IdentityFromRequest returns the identity stored by JWTAuth, or
// ErrUnauthenticated when the middleware did not run.
func IdentityFromRequest(ctx *fasthttp.RequestCtx) (*domain.Identity, error) {
	identity, ok := ctx.UserValue(identityKey).(*domain.Identity)
	if !ok || identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	return identity, nil
}

func identityFromClaims(claims jwt.MapClaims) *domain.Identity {
	username := stringClaim(claims, "cognito:username")
	subject := stringClaim(claims, "sub")

	userID := username
	if userID == "" {
		userID = subject
	}

	role := stringClaim(claims, "custom:role")
	if role == "" {
		role = "member"
	}

	return &domain.Identity{
		UserID:   userID,
		Username: username,
		Subject:  subject,
		Email:    stringClaim(claims, "email"),
		Role:     role,
		Groups:   groupsClaim(claims),
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}

// groupsClaim accepts both claim encodings seen in the wild: a JSON array
// and a comma-separated string.
func groupsClaim(claims jwt.MapClaims) []string {
	switch raw := claims["cognito:groups"].(type) {
	case string:
		if raw == "" {
			return nil
		}
		parts := strings.Split(raw, ",")
		groups := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				groups = append(groups, trimmed)
			}
		}
		return groups
	case []interface{}:
		groups := make([]string, 0, len(raw))
		for _, entry := range raw {
			if s, ok := entry.(string); ok && s != "" {
				groups = append(groups, s)
			}
		}
		return groups
	}
	return nil
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
