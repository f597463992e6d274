package session

import (
	"fmt"
	"strings"
	"sync"
)

// FieldValidator checks context data against a rule table. The table
// can be swapped at runtime (see RuleWatcher), so access is guarded.
type FieldValidator struct {
	mu    sync.RWMutex
	rules RuleTable
}

// NewFieldValidator creates a validator over the given rules. A nil
// table validates everything.
func NewFieldValidator(rules RuleTable) *FieldValidator {
	return &FieldValidator{rules: rules}
}

// SetRules replaces the rule table.
func (v *FieldValidator) SetRules(rules RuleTable) {
	v.mu.Lock()
	v.rules = rules
	v.mu.Unlock()
}

// Rules returns the current rule table.
func (v *FieldValidator) Rules() RuleTable {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rules
}

// Validate checks the document against every rule. Missing optional
// fields pass; missing required fields fail.
func (v *FieldValidator) Validate(doc map[string]interface{}) ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	v.mu.RLock()
	rules := v.rules
	v.mu.RUnlock()

	for path, rule := range rules {
		value, found := lookupPath(doc, path)
		if !found {
			if rule.Required {
				result.Errors = append(result.Errors, ValidationError{
					Field:   path,
					Message: "required field is missing",
				})
				result.Valid = false
			}
			continue
		}
		v.checkValue(path, value, rule, &result)
	}

	return result
}

func (v *FieldValidator) checkValue(path string, value interface{}, rule ValidationRule, result *ValidationResult) {
	fail := func(msg string) {
		result.Errors = append(result.Errors, ValidationError{Field: path, Message: msg})
		result.Valid = false
	}

	if rule.Type != "" && !matchesType(value, rule.Type) {
		fail(fmt.Sprintf("expected %s, got %T", rule.Type, value))
		return
	}

	if num, ok := asNumber(value); ok {
		if rule.Min != nil && num < *rule.Min {
			fail(fmt.Sprintf("value %v is below minimum %v", num, *rule.Min))
		}
		if rule.Max != nil && num > *rule.Max {
			fail(fmt.Sprintf("value %v is above maximum %v", num, *rule.Max))
		}
	}

	length := -1
	switch val := value.(type) {
	case string:
		length = len(val)
	case []interface{}:
		length = len(val)
	}
	if length >= 0 {
		if rule.MinLength != nil && length < *rule.MinLength {
			fail(fmt.Sprintf("length %d is below minimum %d", length, *rule.MinLength))
		}
		if rule.MaxLength != nil && length > *rule.MaxLength {
			fail(fmt.Sprintf("length %d is above maximum %d", length, *rule.MaxLength))
		}
	}

	if len(rule.Enum) > 0 {
		allowed := false
		for _, candidate := range rule.Enum {
			if valuesEqual(value, candidate) {
				allowed = true
				break
			}
		}
		if !allowed {
			fail(fmt.Sprintf("value %v is not one of the allowed values", value))
		}
	}
}

// lookupPath walks nested maps along a dot path.
func lookupPath(doc map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	current := interface{}(doc)
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func matchesType(value interface{}, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := asNumber(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		return true
	}
}

// asNumber normalizes the numeric types that survive a JSON round trip
// plus the Go literals agents hand in directly.
func asNumber(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func valuesEqual(a, b interface{}) bool {
	if na, ok := asNumber(a); ok {
		if nb, ok := asNumber(b); ok {
			return na == nb
		}
		return false
	}
	return a == b
}
