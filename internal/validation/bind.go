package validation

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/laundry-payflow/internal/apperr"
)

// Error is a validation failure with the offending fields and the tag each one broke.
type Error struct {
	Err    *apperr.Error
	Fields map[string]string
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// BindAndValidate binds the JSON body into out and runs validation.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return &Error{Err: apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidRequest, err, "invalid request body")}
	}
	return check(out, v)
}

// BindQueryAndValidate binds the query string into out and runs validation.
func BindQueryAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindQuery(out); err != nil {
		return &Error{Err: apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidRequest, err, "invalid query")}
	}
	return check(out, v)
}

func check(out interface{}, v *validatorv10.Validate) error {
	if err := v.Struct(out); err != nil {
		fields := validationErrorsToMap(err)
		names := make([]string, 0, len(fields))
		for k := range fields {
			names = append(names, k)
		}
		return &Error{
			Err:    apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidRequest, err, "invalid fields: "+strings.Join(names, ", ")),
			Fields: fields,
		}
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
