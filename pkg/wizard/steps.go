// Package wizard implements the step/validation state machine of the
// personal/address wizard: a form store, the step table, a persistence
// adapter and the controller that gates transitions and drives submission.
package wizard

import (
	"strconv"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
)

// Step identifies a wizard screen.
type Step int

const (
	StepPersonal Step = iota
	StepAddress
	StepConfirmation
)

// StepCount is the number of steps.
const StepCount = 3

// Valid reports whether s is within [StepPersonal, StepConfirmation].
func (s Step) Valid() bool {
	return s >= StepPersonal && s <= StepConfirmation
}

// String returns the decimal form used in storage.
func (s Step) String() string {
	return strconv.Itoa(int(s))
}

// Title returns the heading shown for the step.
func (s Step) Title() string {
	if !s.Valid() {
		return ""
	}
	return stepTable[s].Title
}

// StepDefinition describes the fields shown on one step.
type StepDefinition struct {
	Step   Step
	Title  string
	Fields []string
}

var stepTable = [StepCount]StepDefinition{
	{
		Step:   StepPersonal,
		Title:  "Personal Information",
		Fields: []string{forms.KeyName, forms.KeyEmail, forms.KeyPhone},
	},
	{
		Step:  StepAddress,
		Title: "Address Information",
		Fields: []string{
			forms.KeyAddressLine1, forms.KeyAddressLine2,
			forms.KeyCity, forms.KeyState, forms.KeyZipCode,
		},
	},
	{
		Step:  StepConfirmation,
		Title: "Confirmation",
	},
}

// Steps returns the step table in order.
func Steps() []StepDefinition {
	out := make([]StepDefinition, len(stepTable))
	copy(out, stepTable[:])
	return out
}

// Definition returns the table entry for s.
func Definition(s Step) (StepDefinition, bool) {
	if !s.Valid() {
		return StepDefinition{}, false
	}
	return stepTable[s], true
}

// RequiredFields returns the fields of s that the schema marks required.
// The confirmation step requires nothing.
func RequiredFields(schema *forms.Schema, s Step) []string {
	def, ok := Definition(s)
	if !ok {
		return nil
	}
	var out []string
	for _, name := range def.Fields {
		if f, ok := schema.Field(name); ok && f.Required {
			out = append(out, name)
		}
	}
	return out
}
