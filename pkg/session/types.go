package session

import "encoding/json"

// ValidationRule constrains one context field, addressed by dot path
// ("customer.tier"). Zero-valued bounds are not enforced.
type ValidationRule struct {
	Type      string        `json:"type,omitempty"` // string, number, array, object, boolean
	Required  bool          `json:"required,omitempty"`
	Min       *float64      `json:"min,omitempty"`
	Max       *float64      `json:"max,omitempty"`
	MinLength *int          `json:"minLength,omitempty"`
	MaxLength *int          `json:"maxLength,omitempty"`
	Enum      []interface{} `json:"enum,omitempty"`
}

// RuleTable maps dot paths to their rules.
type RuleTable map[string]ValidationRule

// ParseRuleTable decodes a JSON rule table, the on-disk format the
// watcher reloads.
func ParseRuleTable(data []byte) (RuleTable, error) {
	var table RuleTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table, nil
}

// ValidationError is a rule violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationWarning is advisory feedback that does not block a write.
type ValidationWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of checking an update against the
// rule table.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}
