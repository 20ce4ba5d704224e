package domain

import (
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/currency"
)

// tierNamePattern matches lowercase slugs such as "pro" or "trial_14d".
var tierNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("tiername", func(fl validator.FieldLevel) bool {
		return ValidTierNameFormat(TierName(fl.Field().String()))
	})
	_ = v.RegisterValidation("documentformat", func(fl validator.FieldLevel) bool {
		return slices.Contains(KnownFormats, DocumentFormat(fl.Field().String()))
	})
	_ = v.RegisterValidation("draftingtype", func(fl validator.FieldLevel) bool {
		return slices.Contains(KnownDraftingTypes, DraftingType(fl.Field().String()))
	})
	_ = v.RegisterValidation("feature", func(fl validator.FieldLevel) bool {
		return slices.Contains(KnownFeatures, Feature(fl.Field().String()))
	})
	return v
}

// ValidTierNameFormat reports whether name is a well-formed tier slug.
// Registry membership is checked separately by the catalog.
func ValidTierNameFormat(name TierName) bool {
	return tierNamePattern.MatchString(string(name))
}

// Validate checks the tier's field values. It does not consult the
// tier-name registry. Returns a *ValidationError keyed by snake_case field.
func (t *Tier) Validate(op string) error {
	ve := &ValidationError{Op: op, Fields: map[string]string{}}

	if err := validate.Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Internal(err, op, "tier validation failed")
		}
		for _, fe := range fieldErrs {
			ve.Add(fieldKey(fe), fieldMessage(fe))
		}
	}

	if t.Currency != "" {
		if _, err := currency.ParseISO(t.Currency); err != nil {
			ve.Add("currency", "must be an ISO 4217 currency code")
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// fieldKey maps "Tier.DocumentFormats[1]" style namespaces to "document_formats".
func fieldKey(fe validator.FieldError) string {
	name := fe.StructField()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return toSnake(name)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "tiername":
		return "must be a lowercase slug of 2-32 characters"
	case "gte":
		if fe.Param() == "-1" {
			return "must be zero or greater, or unlimited"
		}
		return "must be " + fe.Param() + " or greater"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "documentformat":
		return "unknown document format " + quoteValue(fe.Value())
	case "draftingtype":
		return "unknown drafting type " + quoteValue(fe.Value())
	case "feature":
		return "unknown feature " + quoteValue(fe.Value())
	default:
		return "is invalid"
	}
}

func quoteValue(v any) string {
	if s, ok := v.(string); ok {
		return `"` + s + `"`
	}
	switch s := v.(type) {
	case DocumentFormat:
		return `"` + string(s) + `"`
	case DraftingType:
		return `"` + string(s) + `"`
	case Feature:
		return `"` + string(s) + `"`
	}
	return ""
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
