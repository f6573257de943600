package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorHandler converts any *Error left on the Gin context into the
// standard JSON envelope, logging FORBIDDEN errors at debug level (the
// unmet rules themselves are logged by auth.RequireRule).
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		if appErr, ok := err.Err.(*Error); ok {
			event := log.Info()
			if appErr.StatusCode >= 500 {
				event = log.Error()
			} else if appErr.Code == CodeForbidden {
				event = log.Debug()
			}
			event.Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Msg("unhandled request error")
		c.JSON(http.StatusInternalServerError, Response{Error: CodeInternal, Message: "an unexpected error occurred", Code: CodeInternal})
	}
}

// Recovery recovers from panics in handlers and plugin-contributed routers.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, Response{Error: CodeInternal, Message: "an unexpected error occurred", Code: CodeInternal})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HandleError records err on the context and writes the mapped JSON response.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*Error); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	internalErr := Internal(err)
	c.Error(internalErr)
	c.JSON(internalErr.StatusCode, internalErr.ToResponse())
}

// AbortWithError aborts the request immediately with the mapped response.
func AbortWithError(c *gin.Context, err *Error) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
