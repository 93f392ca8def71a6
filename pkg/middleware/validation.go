package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/troikatech/engage-api/pkg/errors"
)

// RegisterValidators adds the objectid tag to gin's binding validator and
// reports failed fields by their json name. Phone fields use the validator's
// built-in e164 tag.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(jsonFieldName)
	return v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return id == "" || primitive.IsValidObjectID(id)
	})
}

func jsonFieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// ValidateObjectIDParam rejects requests whose path param is not a hex ObjectID.
func ValidateObjectIDParam(paramNames ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range paramNames {
			id := c.Param(name)
			if !primitive.IsValidObjectID(id) {
				errors.BadRequest(c, "invalid "+name+" parameter")
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
