package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	check "github.com/nkiryanov/escrow/internal/service/validate"
)

func configureValidator(v *validator.Validate) {
	_ = v.RegisterValidation("card_number", validateCardNumber)
	v.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func validateCardNumber(fl validator.FieldLevel) bool {
	return check.CardNumber(fl.Field().String()) == nil
}
