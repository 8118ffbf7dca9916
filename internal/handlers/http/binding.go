package http

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	apperrors "workhub/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var jsonNamesOnce sync.Once

// useJSONFieldNames makes validation errors report "new_email" instead of
// "NewEmail".
func useJSONFieldNames() {
	jsonNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bind decodes the JSON body and applies the binding length limits. An empty
// body decodes to the zero request; presence and format are checked by the
// services, which trim and normalize first.
func bind(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		_ = c.Error(apperrors.NewBadRequestError(fieldMessage(fieldErrs[0])))
		return false
	}
	_ = c.Error(apperrors.NewBadRequestError("Invalid request body"))
	return false
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Tag() == "max" {
		return fmt.Sprintf("%s is too long (max %s characters)", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
