package forms

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Validator validates a single field value.
type Validator interface {
	// Validate returns a non-nil error when the value violates the rule.
	Validate(value string) error

	// Message returns the user-facing message for a violation.
	Message() string
}

var errRuleFailed = errors.New("rule failed")

// RequiredValidator rejects blank values.
type RequiredValidator struct {
	Msg string
}

func (v RequiredValidator) Validate(value string) error {
	if strings.TrimSpace(value) == "" {
		return errRuleFailed
	}
	return nil
}

func (v RequiredValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "This field is required"
}

// NotNumericValidator rejects values that are entirely a number.
// Blank values pass; pair it with RequiredValidator when needed.
type NotNumericValidator struct {
	Msg string
}

func (v NotNumericValidator) Validate(value string) error {
	if IsNumeric(value) {
		return errRuleFailed
	}
	return nil
}

func (v NotNumericValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "Cannot be a number"
}

// PatternValidator requires the whole value to match a regular expression.
type PatternValidator struct {
	Pattern *regexp.Regexp
	Msg     string
}

func (v PatternValidator) Validate(value string) error {
	if !v.Pattern.MatchString(value) {
		return errRuleFailed
	}
	return nil
}

func (v PatternValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "Invalid format"
}

// DigitsOnlyValidator rejects any value containing a character outside 0-9.
// The empty string passes.
type DigitsOnlyValidator struct {
	Msg string
}

func (v DigitsOnlyValidator) Validate(value string) error {
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return errRuleFailed
		}
	}
	return nil
}

func (v DigitsOnlyValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "Only digits are allowed"
}

// CustomValidator wraps an arbitrary predicate.
type CustomValidator struct {
	Fn  func(value string) error
	Msg string
}

func (v CustomValidator) Validate(value string) error {
	return v.Fn(value)
}

func (v CustomValidator) Message() string {
	return v.Msg
}

// IsNumeric reports whether the trimmed value parses completely as a number.
// A numeric prefix ("12abc") is not enough, and NaN does not count.
func IsNumeric(value string) bool {
	s := strings.TrimSpace(value)
	if s == "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return !math.IsNaN(f)
}

// Run applies validators in order and returns the message of the last one
// that failed, or "" when all pass.
func Run(value string, validators []Validator) string {
	msg := ""
	for _, v := range validators {
		if err := v.Validate(value); err != nil {
			msg = v.Message()
		}
	}
	return msg
}

// Convenience constructors

// Required returns a required validator with the given message.
func Required(msg string) Validator {
	return RequiredValidator{Msg: msg}
}

// NotNumeric returns a not-a-number validator with the given message.
func NotNumeric(msg string) Validator {
	return NotNumericValidator{Msg: msg}
}

// Pattern returns a pattern validator. It panics if pattern does not compile.
func Pattern(pattern, msg string) Validator {
	return PatternValidator{Pattern: regexp.MustCompile(pattern), Msg: msg}
}

// DigitsOnly returns a digits-only validator with the given message.
func DigitsOnly(msg string) Validator {
	return DigitsOnlyValidator{Msg: msg}
}

// Custom returns a custom validator.
func Custom(fn func(value string) error, msg string) Validator {
	return CustomValidator{Fn: fn, Msg: msg}
}
