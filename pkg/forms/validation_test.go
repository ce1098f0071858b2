package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressSchema_EmptyInput(t *testing.T) {
	schema := AddressSchema()

	for _, f := range schema.Fields() {
		msg := schema.Validate(f.Name, "")
		if f.Name == KeyAddressLine2 {
			assert.Empty(t, msg, "addressLine2 is optional")
			continue
		}
		assert.NotEmpty(t, msg, "field %s should reject empty input", f.Name)
	}
}

func TestAddressSchema_Rules(t *testing.T) {
	schema := AddressSchema()

	tests := []struct {
		field string
		value string
		want  string
	}{
		{KeyName, "", "Name is required"},
		{KeyName, "   ", "Name is required"},
		{KeyName, "12345", "Name cannot be a number"},
		{KeyName, " 3.14 ", "Name cannot be a number"},
		{KeyName, "1e5", "Name cannot be a number"},
		{KeyName, "12abc", ""},
		{KeyName, "Alice", ""},

		{KeyEmail, "a@b.com", ""},
		{KeyEmail, "not-an-email", "Invalid email format"},
		{KeyEmail, "", "Invalid email format"},
		{KeyEmail, "a b@c.com", "Invalid email format"},
		{KeyEmail, "a@bcom", "Invalid email format"},

		{KeyPhone, "1234567890", ""},
		{KeyPhone, "12345", "Phone must be 10 digits"},
		{KeyPhone, "", "Phone must be 10 digits"},
		{KeyPhone, "12345abcde", "Phone can't be letters"},
		{KeyPhone, "123456789a", "Phone can't be letters"},
		{KeyPhone, "12345678901", "Phone must be 10 digits"},

		{KeyAddressLine1, "", "Address Line 1 is required"},
		{KeyAddressLine1, "12345", "Address Line 1 cannot be a number"},
		{KeyAddressLine1, "221B Baker Street", ""},

		{KeyAddressLine2, "", ""},
		{KeyAddressLine2, "42", "Address Line 2 cannot be a number"},
		{KeyAddressLine2, "Apt 4", ""},

		{KeyCity, "", "City is required"},
		{KeyCity, "12345", "City cannot be a number"},
		{KeyCity, "Springfield", ""},

		{KeyState, "", "State is required"},
		{KeyState, "12345", "State cannot be a number"},
		{KeyState, "Oregon", ""},

		{KeyZipCode, "123456", ""},
		{KeyZipCode, "1234", "Invalid ZIP code"},
		{KeyZipCode, "", "Invalid ZIP code"},
		{KeyZipCode, "12a456", "ZIP code cannot be a string"},
		{KeyZipCode, "abc", "ZIP code cannot be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, schema.Validate(tt.field, tt.value))
		})
	}
}

func TestAddressSchema_NumericStringsRejected(t *testing.T) {
	schema := AddressSchema()

	for _, field := range []string{KeyName, KeyCity, KeyState, KeyAddressLine1} {
		for _, value := range []string{"12345", "0", "-7", "1.5"} {
			msg := schema.Validate(field, value)
			assert.Contains(t, msg, "cannot be a number", "%s=%q", field, value)
		}
	}
}

func TestSchema_UnknownField(t *testing.T) {
	schema := AddressSchema()
	assert.Empty(t, schema.Validate("nickname", ""))
	assert.False(t, schema.Has("nickname"))
}

func TestSchema_DuplicateReplaces(t *testing.T) {
	schema := NewSchema(
		TextField("a", "First"),
		TextField("b", "B"),
		TextField("a", "Second"),
	)

	fields := schema.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "Second", fields[0].Label)
	assert.Equal(t, "b", fields[1].Name)
}

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"  ", false},
		{"123", true},
		{" 123 ", true},
		{"-1.25", true},
		{"1e3", true},
		{"Infinity", true},
		{"NaN", false},
		{"12abc", false},
		{"abc", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNumeric(tt.value), "IsNumeric(%q)", tt.value)
	}
}

func TestRun_LastFailureWins(t *testing.T) {
	validators := []Validator{
		Custom(func(string) error { return errRuleFailed }, "first"),
		Custom(func(string) error { return nil }, "second"),
		Custom(func(string) error { return errRuleFailed }, "third"),
	}
	assert.Equal(t, "third", Run("x", validators))
	assert.Empty(t, Run("x", nil))
}

func TestFormData_GetSet(t *testing.T) {
	var d FormData

	require.NoError(t, d.Set(KeyCity, "Lisbon"))
	v, err := d.Get(KeyCity)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", v)
	assert.Empty(t, d.Name)

	assert.ErrorIs(t, d.Set("nickname", "x"), ErrUnknownField)
	_, err = d.Get("nickname")
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.True(t, d.IsBlank(KeyName))
	assert.False(t, d.IsZero())
}

func TestSchema_CoversFormData(t *testing.T) {
	var d FormData
	for _, f := range AddressSchema().Fields() {
		assert.NoError(t, d.Set(f.Name, "x"), "FormData lacks %s", f.Name)
	}
}
