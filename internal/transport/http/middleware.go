package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing the caller identity.
	ContextKeyUserID = "user_id"

	// HeaderUserID carries the caller identity set by a trusted gateway.
	HeaderUserID = "X-User-ID"
)

var (
	errInvalidAuthHeader = errors.New("invalid authorization header format")
	errInvalidUserHeader = errors.New("invalid " + HeaderUserID + " header")
	errTokensDisabled    = errors.New("token authentication is not configured")
)

// identityResolver extracts the caller identity from a request.
type identityResolver struct {
	auth     *auth.Service
	required bool
}

func newIdentityResolver(authService *auth.Service, jwtRequired bool) *identityResolver {
	return &identityResolver{auth: authService, required: jwtRequired}
}

// fromToken validates a bearer token.
func (r *identityResolver) fromToken(token string) (int64, error) {
	if r.auth == nil {
		return 0, errTokensDisabled
	}
	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// fromRequest returns the identity carried by the request, if any.
// The gateway header is ignored when tokens are required.
func (r *identityResolver) fromRequest(req *http.Request) (int64, bool, error) {
	if header := req.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return 0, false, errInvalidAuthHeader
		}
		id, err := r.fromToken(parts[1])
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	if r.required {
		return 0, false, nil
	}

	if header := req.Header.Get(HeaderUserID); header != "" {
		id, err := strconv.ParseInt(header, 10, 64)
		if err != nil || id <= 0 {
			return 0, false, errInvalidUserHeader
		}
		return id, true, nil
	}

	return 0, false, nil
}

// IdentityMiddleware stores the caller identity in the context. It rejects
// malformed credentials, and requests without a token when tokens are required.
func IdentityMiddleware(resolver *identityResolver, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok, err := resolver.fromRequest(c.Request)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid credentials")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		if !ok && resolver.required {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}
		if ok {
			c.Set(ContextKeyUserID, userID)
		}

		c.Next()
	}
}

// callerID returns the identity stored by IdentityMiddleware.
func callerID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

// requireCaller aborts with 401 when the request carries no identity.
func requireCaller(c *gin.Context) (int64, bool) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, false
	}
	return uid, true
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
