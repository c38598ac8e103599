package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobgate/internal/api/middleware"
	"jobgate/internal/errcode"
)

const exposeDetailKey = "exposeErrorDetail"

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

func TooManyRequests(c *gin.Context) {
	Error(c, http.StatusTooManyRequests, "rate limit exceeded")
}

// errorDetailMiddleware controls whether RespondError includes wrapped causes.
func errorDetailMiddleware(expose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(exposeDetailKey, expose)
		c.Next()
	}
}

// RespondError writes err as {"error", "code"[, "detail"]} with the status of its kind.
// Unclassified errors become a 500 with a generic message.
func RespondError(c *gin.Context, err error) {
	e, ok := errcode.As(err)
	if !ok {
		e = errcode.Wrap(errcode.KindUnknown, "internal error", err)
	}
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		middleware.LoggerFromContext(c).Error("request failed",
			slog.String("kind", e.Kind.String()),
			slog.Any("error", err),
		)
	}

	body := gin.H{"error": e.Message, "code": e.Code()}
	if expose := c.GetBool(exposeDetailKey); expose && e.Err != nil {
		body["detail"] = e.Err.Error()
	}
	c.JSON(status, body)
}

// uintParam parses a positive integer path parameter, answering 400 when it is malformed.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// optionalUintQuery parses an optional positive integer query parameter.
func optionalUintQuery(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		BadRequest(c, "invalid "+name)
		return nil, false
	}
	id := uint(v)
	return &id, true
}

func principalOrAbort(c *gin.Context) (id uint, role string, ok bool) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, "", false
	}
	return p.ID, p.Role, true
}
