package skill

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/chekos/pedagogical-engine/core"
)

var (
	bloomTag  = "bloom"
	bloomText = "must be one of: remember, understand, apply, analyze, evaluate, create"
)

// InitValidators registers the skill validators & translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(bloomTag, func(fl validator.FieldLevel) bool {
		return IsBloomLevel(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, bloomTag, bloomText)
}
