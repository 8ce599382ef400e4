package member

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

var (
	memberKindTag  = "memberkind"
	memberKindText = "{0} must be one of: student, teacher, librarian"
)

// InitValidators registers the member validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(memberKindTag, memberKindValidation)
	core.RegisterCustomTranslation(validate, translator, memberKindTag, memberKindText)
}

func memberKindValidation(fl validator.FieldLevel) bool {
	return Kind(fl.Field().String()).IsValid()
}
