package wizard

import (
	"context"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
)

// FormStore holds the form values, their validation messages and the
// current step, and mirrors every committed change to Persistence.
//
// FormStore is not safe for concurrent use; Controller serialises access.
type FormStore struct {
	schema  *forms.Schema
	persist Persistence
	log     logging.Logger

	data   forms.FormData
	errors forms.ErrorMap
	step   Step
}

// NewFormStore creates an empty store.
func NewFormStore(schema *forms.Schema, persist Persistence, log logging.Logger) *FormStore {
	if persist == nil {
		persist = NopPersistence{}
	}
	if log == nil {
		log = logging.NopLogger{}
	}
	return &FormStore{
		schema:  schema,
		persist: persist,
		log:     log,
		errors:  make(forms.ErrorMap),
	}
}

// Restore seeds the store from previously persisted state without writing
// it back. Non-blank values were edited in an earlier session, so they are
// validated again to keep step gating honest.
func (s *FormStore) Restore(data forms.FormData, step Step) {
	if !step.Valid() {
		step = StepPersonal
	}
	s.data = data
	s.step = step
	s.errors = make(forms.ErrorMap)
	for _, f := range s.schema.Fields() {
		if v := data.Value(f.Name); v != "" {
			s.errors[f.Name] = s.schema.Validate(f.Name, v)
		}
	}
}

// SetField replaces one value, validates that field only and persists the
// form data, as one operation. It returns the field's new message.
func (s *FormStore) SetField(ctx context.Context, name, value string) (string, error) {
	if !s.schema.Has(name) {
		return "", forms.ErrUnknownField
	}
	if err := s.data.Set(name, value); err != nil {
		return "", err
	}

	msg := s.schema.Validate(name, value)
	s.errors[name] = msg

	if err := s.persist.SaveData(ctx, s.data); err != nil {
		s.log.Warn("persist form data", logging.Err(err))
	}
	return msg, nil
}

// TouchField re-runs validation for a field that lost focus, without
// changing its value.
func (s *FormStore) TouchField(name, value string) (string, error) {
	if !s.schema.Has(name) {
		return "", forms.ErrUnknownField
	}
	msg := s.schema.Validate(name, value)
	s.errors[name] = msg
	return msg, nil
}

// SetStep moves to step and persists it. Callers check bounds.
func (s *FormStore) SetStep(ctx context.Context, step Step) {
	if s.step == step {
		return
	}
	s.step = step
	if err := s.persist.SaveStep(ctx, step); err != nil {
		s.log.Warn("persist step", logging.Err(err))
	}
}

// Reset empties the form, returns to the first step and clears errors.
func (s *FormStore) Reset(ctx context.Context) {
	s.data = forms.FormData{}
	s.errors = make(forms.ErrorMap)
	s.step = StepPersonal

	if err := s.persist.SaveData(ctx, s.data); err != nil {
		s.log.Warn("persist form data", logging.Err(err))
	}
	if err := s.persist.SaveStep(ctx, s.step); err != nil {
		s.log.Warn("persist step", logging.Err(err))
	}
}

// Data returns the current values.
func (s *FormStore) Data() forms.FormData {
	return s.data
}

// Errors returns a copy of the error map.
func (s *FormStore) Errors() forms.ErrorMap {
	return s.errors.Clone()
}

// Step returns the current step.
func (s *FormStore) Step() Step {
	return s.step
}

// Schema returns the field table.
func (s *FormStore) Schema() *forms.Schema {
	return s.schema
}

// FieldValid reports whether name is non-blank and has no recorded error.
func (s *FormStore) FieldValid(name string) bool {
	return !s.data.IsBlank(name) && !s.errors.Has(name)
}
