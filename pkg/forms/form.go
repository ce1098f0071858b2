// Package forms provides the field table and validation rules for the
// address wizard, plus the FormData record they apply to.
package forms

import (
	"errors"
	"strings"
)

// ErrUnknownField is returned when a field name is not part of FormData.
var ErrUnknownField = errors.New("unknown field")

// FormData holds the values entered in the wizard. JSON keys match the
// field names used in events and storage.
type FormData struct {
	Name         string `json:"name" msgpack:"name"`
	Email        string `json:"email" msgpack:"email"`
	Phone        string `json:"phone" msgpack:"phone"`
	AddressLine1 string `json:"addressLine1" msgpack:"addressLine1"`
	AddressLine2 string `json:"addressLine2" msgpack:"addressLine2"`
	City         string `json:"city" msgpack:"city"`
	State        string `json:"state" msgpack:"state"`
	ZipCode      string `json:"zipCode" msgpack:"zipCode"`
}

func (d *FormData) ptr(name string) *string {
	switch name {
	case KeyName:
		return &d.Name
	case KeyEmail:
		return &d.Email
	case KeyPhone:
		return &d.Phone
	case KeyAddressLine1:
		return &d.AddressLine1
	case KeyAddressLine2:
		return &d.AddressLine2
	case KeyCity:
		return &d.City
	case KeyState:
		return &d.State
	case KeyZipCode:
		return &d.ZipCode
	default:
		return nil
	}
}

// Get returns the value of the named field.
func (d FormData) Get(name string) (string, error) {
	p := d.ptr(name)
	if p == nil {
		return "", ErrUnknownField
	}
	return *p, nil
}

// Set replaces the value of the named field, leaving all others untouched.
func (d *FormData) Set(name, value string) error {
	p := d.ptr(name)
	if p == nil {
		return ErrUnknownField
	}
	*p = value
	return nil
}

// Value returns the named field or "" if it does not exist.
func (d FormData) Value(name string) string {
	v, _ := d.Get(name)
	return v
}

// IsBlank reports whether the named field is empty after trimming.
func (d FormData) IsBlank(name string) bool {
	return strings.TrimSpace(d.Value(name)) == ""
}

// IsZero reports whether every field is empty.
func (d FormData) IsZero() bool {
	return d == FormData{}
}

// ErrorMap maps a field name to its latest validation message. A key is
// present once the field has been validated; "" means it passed.
type ErrorMap map[string]string

// Get returns the message for name.
func (e ErrorMap) Get(name string) string {
	return e[name]
}

// Has reports whether name currently has a non-empty message.
func (e ErrorMap) Has(name string) bool {
	return e[name] != ""
}

// Touched reports whether name has been validated at least once.
func (e ErrorMap) Touched(name string) bool {
	_, ok := e[name]
	return ok
}

// Clone returns a copy of the map.
func (e ErrorMap) Clone() ErrorMap {
	out := make(ErrorMap, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
