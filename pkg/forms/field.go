package forms

// FieldType identifies the HTML input type used to render a field.
type FieldType string

const (
	FieldText  FieldType = "text"
	FieldEmail FieldType = "email"
	FieldTel   FieldType = "tel"
)

// Field describes one named input and the rules it is validated with.
type Field struct {
	// Name is the field key used in form data and events.
	Name string `json:"name"`

	// Type is the input type.
	Type FieldType `json:"type"`

	// Label is the display label.
	Label string `json:"label"`

	// Placeholder is the placeholder text.
	Placeholder string `json:"placeholder,omitempty"`

	// Required marks fields that must be non-blank for their step to pass.
	Required bool `json:"required"`

	// Autocomplete attribute.
	Autocomplete string `json:"autocomplete,omitempty"`

	// Validators run in order; the last failure wins.
	Validators []Validator `json:"-"`
}

// FieldOption is a function that configures a field.
type FieldOption func(*Field)

// NewField creates a new field.
func NewField(name string, fieldType FieldType, label string, opts ...FieldOption) Field {
	field := Field{
		Name:       name,
		Type:       fieldType,
		Label:      label,
		Validators: make([]Validator, 0),
	}

	for _, opt := range opts {
		opt(&field)
	}

	return field
}

// WithRequired marks the field as required.
func WithRequired() FieldOption {
	return func(f *Field) {
		f.Required = true
	}
}

// WithPlaceholder sets the placeholder text.
func WithPlaceholder(placeholder string) FieldOption {
	return func(f *Field) {
		f.Placeholder = placeholder
	}
}

// WithAutocomplete sets the autocomplete attribute.
func WithAutocomplete(value string) FieldOption {
	return func(f *Field) {
		f.Autocomplete = value
	}
}

// WithValidator appends validators.
func WithValidator(v ...Validator) FieldOption {
	return func(f *Field) {
		f.Validators = append(f.Validators, v...)
	}
}

// Validate runs the field's validators against value.
func (f Field) Validate(value string) string {
	return Run(value, f.Validators)
}

// TextField creates a text field.
func TextField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldText, label, opts...)
}

// EmailField creates an email field.
func EmailField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldEmail, label, opts...)
}

// TelField creates a telephone field.
func TelField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldTel, label, opts...)
}
