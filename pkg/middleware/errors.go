package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/errors"
)

// ErrorTranslator renders the last error attached with c.Error as problem+json,
// unless the handler already wrote a response.
func ErrorTranslator(production bool, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !production {
			errors.ExposeDetail(c)
		}

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		errors.Respond(c, c.Errors.Last().Err, log)
	}
}
