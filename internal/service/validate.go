package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"recipe_importer/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRecipe returns a human readable reason when the recipe does not
// meet the minimum content quality, or "" when it does.
func validateRecipe(recipe *domain.Recipe) string {
	err := validate.Struct(recipe)
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Sprintf("validation: %v", err)
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describe(fe))
	}
	return "validation: " + strings.Join(parts, "; ")
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "min":
		return field + " is empty"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
