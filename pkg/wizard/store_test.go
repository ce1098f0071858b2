package wizard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

func newTestFormStore(kv state.Store) *FormStore {
	return NewFormStore(forms.AddressSchema(), NewStorePersistence(kv, nil), nil)
}

func TestFormStore_SetField(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	s := newTestFormStore(kv)

	msg, err := s.SetField(ctx, forms.KeyZipCode, "12a456")
	require.NoError(t, err)
	assert.Equal(t, "ZIP code cannot be a string", msg)
	assert.Equal(t, "12a456", s.Data().ZipCode)
	assert.Equal(t, msg, s.Errors().Get(forms.KeyZipCode))

	msg, err = s.SetField(ctx, forms.KeyName, "Alice")
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "12a456", s.Data().ZipCode, "other fields untouched")

	data, _ := NewStorePersistence(kv, nil).Load(ctx)
	assert.Equal(t, s.Data(), data, "every change is mirrored")
}

func TestFormStore_SetFieldIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestFormStore(state.NewMemoryStore())

	_, err := s.SetField(ctx, forms.KeyPhone, "12345")
	require.NoError(t, err)
	data1, errs1 := s.Data(), s.Errors()

	_, err = s.SetField(ctx, forms.KeyPhone, "12345")
	require.NoError(t, err)
	assert.Equal(t, data1, s.Data())
	assert.Equal(t, errs1, s.Errors())
}

func TestFormStore_UnknownField(t *testing.T) {
	s := newTestFormStore(state.NewMemoryStore())

	_, err := s.SetField(context.Background(), "nickname", "x")
	assert.ErrorIs(t, err, forms.ErrUnknownField)

	_, err = s.TouchField("nickname", "x")
	assert.ErrorIs(t, err, forms.ErrUnknownField)
	assert.Empty(t, s.Errors())
}

func TestFormStore_TouchField(t *testing.T) {
	s := newTestFormStore(state.NewMemoryStore())

	msg, err := s.TouchField(forms.KeyEmail, "")
	require.NoError(t, err)
	assert.Equal(t, "Invalid email format", msg)
	assert.Empty(t, s.Data().Email, "touch never changes the value")
	assert.True(t, s.Errors().Touched(forms.KeyEmail))
}

func TestFormStore_Restore(t *testing.T) {
	s := newTestFormStore(state.NewMemoryStore())

	s.Restore(forms.FormData{Name: "Alice", ZipCode: "123"}, StepAddress)

	assert.Equal(t, StepAddress, s.Step())
	assert.Equal(t, "Invalid ZIP code", s.Errors().Get(forms.KeyZipCode))
	assert.False(t, s.Errors().Touched(forms.KeyEmail), "blank fields stay untouched")
	assert.True(t, s.FieldValid(forms.KeyName))
	assert.False(t, s.FieldValid(forms.KeyZipCode))
	assert.False(t, s.FieldValid(forms.KeyCity))
}

func TestFormStore_Reset(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	s := newTestFormStore(kv)

	_, err := s.SetField(ctx, forms.KeyCity, "Paris")
	require.NoError(t, err)
	s.SetStep(ctx, StepConfirmation)

	s.Reset(ctx)
	assert.True(t, s.Data().IsZero())
	assert.Empty(t, s.Errors())
	assert.Equal(t, StepPersonal, s.Step())

	data, step := NewStorePersistence(kv, nil).Load(ctx)
	assert.True(t, data.IsZero())
	assert.Equal(t, StepPersonal, step)
}
