package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// patternTag is a custom validation tag backed by a regular expression.
type patternTag struct {
	tag   string
	text  string
	regex *regexp.Regexp
}

var (
	patternTags = []patternTag{
		{tag: "coursecode", text: "{0} must be letters followed by digits (e.g. BIT1234)", regex: regexp.MustCompile(`^[A-Za-z]{2,5}\d{3,5}$`)},
		{tag: "intake", text: "{0} must be a year and month (e.g. 202409)", regex: regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`)},
	}

	// messages overriding the default english translations
	overrides = map[string]string{
		"required":      "this field is required",
		"required_with": "this field is required",
		"gtfield":       "{0} must be after {1}",
	}
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, pt := range patternTags {
		regex := pt.regex
		_ = validate.RegisterValidation(pt.tag, func(fl validator.FieldLevel) bool {
			return regex.MatchString(fl.Field().String())
		})
		RegisterCustomTranslation(validate, translator, pt.tag, pt.text)
	}
	for tag, text := range overrides {
		RegisterCustomTranslation(validate, translator, tag, text, true)
	}
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
// {0} is the field name and {1} the tag parameter.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field(), fe.Param())
			return s
		},
	)
}
