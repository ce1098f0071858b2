package forms

// Field names of the address wizard.
const (
	KeyName         = "name"
	KeyEmail        = "email"
	KeyPhone        = "phone"
	KeyAddressLine1 = "addressLine1"
	KeyAddressLine2 = "addressLine2"
	KeyCity         = "city"
	KeyState        = "state"
	KeyZipCode      = "zipCode"
)

// Schema is an ordered set of fields looked up by name.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema. Later fields with a duplicate name replace
// earlier ones in place.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if i, ok := s.index[f.Name]; ok {
			s.fields[i] = f
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Validate returns the error message for value in the named field, or ""
// when it is valid. Unknown fields have no rules and always pass.
func (s *Schema) Validate(name, value string) string {
	f, ok := s.Field(name)
	if !ok {
		return ""
	}
	return f.Validate(value)
}

// AddressSchema returns the field table of the personal/address wizard.
func AddressSchema() *Schema {
	return NewSchema(
		TextField(KeyName, "Name",
			WithRequired(),
			WithAutocomplete("name"),
			WithValidator(
				Required("Name is required"),
				NotNumeric("Name cannot be a number"),
			)),
		EmailField(KeyEmail, "Email",
			WithRequired(),
			WithAutocomplete("email"),
			WithValidator(
				Pattern(`^[^\s@]+@[^\s@]+\.[^\s@]+$`, "Invalid email format"),
			)),
		TelField(KeyPhone, "Phone",
			WithRequired(),
			WithAutocomplete("tel"),
			WithValidator(
				Pattern(`^[0-9]{10}$`, "Phone must be 10 digits"),
				DigitsOnly("Phone can't be letters"),
			)),
		TextField(KeyAddressLine1, "Address Line 1",
			WithRequired(),
			WithAutocomplete("address-line1"),
			WithValidator(
				Required("Address Line 1 is required"),
				NotNumeric("Address Line 1 cannot be a number"),
			)),
		TextField(KeyAddressLine2, "Address Line 2 (Optional)",
			WithAutocomplete("address-line2"),
			WithValidator(
				NotNumeric("Address Line 2 cannot be a number"),
			)),
		TextField(KeyCity, "City",
			WithRequired(),
			WithAutocomplete("address-level2"),
			WithValidator(
				Required("City is required"),
				NotNumeric("City cannot be a number"),
			)),
		TextField(KeyState, "State",
			WithRequired(),
			WithAutocomplete("address-level1"),
			WithValidator(
				Required("State is required"),
				NotNumeric("State cannot be a number"),
			)),
		TextField(KeyZipCode, "Zip Code",
			WithRequired(),
			WithAutocomplete("postal-code"),
			WithValidator(
				Pattern(`^[0-9]{6}$`, "Invalid ZIP code"),
				DigitsOnly("ZIP code cannot be a string"),
			)),
	)
}
