package eggs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

// ValidateVariables runs every declared variable's Rules DSL against the
// provided values map. Unspecified keys are validated against the
// variable's DefaultValue, matching the Config Store's fallback
// semantics (§4.3): a value the caller never set must still satisfy
// "required" against the default the egg ships.
func ValidateVariables(egg *Egg, values map[string]string) error {
	for _, variable := range egg.Variables {
		value, present := values[variable.EnvVariable]
		if !present {
			value = variable.DefaultValue
		}
		if err := validateRules(variable.Rules, variable.EnvVariable, value); err != nil {
			return err
		}
	}
	return nil
}

// validateRules evaluates one pipe-separated rules string against value.
// tokens are evaluated in order; "nullable" short-circuits the remaining
// tokens when value is empty (an empty, nullable value is always valid
// regardless of numeric/between/in constraints).
func validateRules(rules string, fieldName string, value string) error {
	if rules == "" {
		return nil
	}

	tokens := strings.Split(rules, "|")

	nullable := containsToken(tokens, "nullable")
	if nullable && value == "" {
		return nil
	}

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		switch {
		case token == "required":
			if value == "" {
				return badRule(fieldName, "value is required")
			}
		case token == "nullable", token == "string":
			// "string" imposes no shape constraint beyond being a string,
			// which every value already is.
		case token == "numeric":
			if value != "" {
				if _, err := strconv.ParseFloat(value, 64); err != nil {
					return badRule(fieldName, "value must be numeric")
				}
			}
		case strings.HasPrefix(token, "min:"):
			if err := checkMin(token, fieldName, value); err != nil {
				return err
			}
		case strings.HasPrefix(token, "max:"):
			if err := checkMax(token, fieldName, value); err != nil {
				return err
			}
		case strings.HasPrefix(token, "between:"):
			if err := checkBetween(token, fieldName, value); err != nil {
				return err
			}
		case strings.HasPrefix(token, "in:"):
			if err := checkIn(token, fieldName, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkMin(token, fieldName, value string) error {
	if value == "" {
		return nil
	}
	bound, err := strconv.ParseFloat(strings.TrimPrefix(token, "min:"), 64)
	if err != nil {
		return nil // malformed rule in the egg itself, not a user input problem
	}
	numeric, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return badRule(fieldName, "value must be numeric to check min")
	}
	if numeric < bound {
		return badRule(fieldName, fmt.Sprintf("value must be at least %v", bound))
	}
	return nil
}

func checkMax(token, fieldName, value string) error {
	if value == "" {
		return nil
	}
	bound, err := strconv.ParseFloat(strings.TrimPrefix(token, "max:"), 64)
	if err != nil {
		return nil
	}
	numeric, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return badRule(fieldName, "value must be numeric to check max")
	}
	if numeric > bound {
		return badRule(fieldName, fmt.Sprintf("value must be at most %v", bound))
	}
	return nil
}

func checkBetween(token, fieldName, value string) error {
	if value == "" {
		return nil
	}
	bounds := strings.Split(strings.TrimPrefix(token, "between:"), ",")
	if len(bounds) != 2 {
		return nil
	}
	lo, errLo := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
	hi, errHi := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
	if errLo != nil || errHi != nil {
		return nil
	}
	numeric, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return badRule(fieldName, "value must be numeric to check between")
	}
	if numeric < lo || numeric > hi {
		return badRule(fieldName, fmt.Sprintf("value must be between %v and %v", lo, hi))
	}
	return nil
}

func checkIn(token, fieldName, value string) error {
	if value == "" {
		return nil
	}
	allowed := strings.Split(strings.TrimPrefix(token, "in:"), ",")
	for _, candidate := range allowed {
		if strings.TrimSpace(candidate) == value {
			return nil
		}
	}
	return badRule(fieldName, fmt.Sprintf("value must be one of: %s", strings.Join(allowed, ", ")))
}

func containsToken(tokens []string, target string) bool {
	for _, token := range tokens {
		if strings.TrimSpace(token) == target {
			return true
		}
	}
	return false
}

func badRule(fieldName, reason string) error {
	return apperr.NewBadRequest(fmt.Sprintf("%s: %s", fieldName, reason), nil)
}
