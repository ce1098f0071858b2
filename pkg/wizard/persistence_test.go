package wizard

import (
	"context"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

func TestStorePersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	p := NewStorePersistence(kv, nil)

	data := forms.FormData{
		Name:         "Alice",
		Email:        "alice@example.com",
		Phone:        "1234567890",
		AddressLine1: "1 Main St",
		City:         "Springfield",
		State:        "Oregon",
		ZipCode:      "123456",
	}
	require.NoError(t, p.SaveData(ctx, data))
	require.NoError(t, p.SaveStep(ctx, StepAddress))

	gotData, gotStep := p.Load(ctx)
	assert.Equal(t, data, gotData)
	assert.Equal(t, StepAddress, gotStep)
}

func TestStorePersistence_Format(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	p := NewStorePersistence(kv, nil)

	require.NoError(t, p.SaveData(ctx, forms.FormData{ZipCode: "123456"}))
	require.NoError(t, p.SaveStep(ctx, StepConfirmation))

	raw, err := kv.Get(ctx, DataKey)
	require.NoError(t, err)
	var obj map[string]string
	require.NoError(t, sonic.Unmarshal(raw, &obj))
	assert.Equal(t, "123456", obj["zipCode"])
	assert.Contains(t, obj, "addressLine2")
	assert.Len(t, obj, 8)

	raw, err = kv.Get(ctx, StepKey)
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))
}

func TestStorePersistence_Defaults(t *testing.T) {
	p := NewStorePersistence(state.NewMemoryStore(), nil)

	data, step := p.Load(context.Background())
	assert.True(t, data.IsZero())
	assert.Equal(t, StepPersonal, step)
}

func TestStorePersistence_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		step     string
		wantName string
		wantStep Step
	}{
		{"bad json, good step", `{"name":`, "1", "", StepAddress},
		{"good json, bad step", `{"name":"Bob"}`, "two", "Bob", StepPersonal},
		{"step out of range", `{"name":"Bob"}`, "7", "Bob", StepPersonal},
		{"negative step", `{}`, "-1", "", StepPersonal},
		{"wrong json type", `[1,2,3]`, " 2 ", "", StepConfirmation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := state.NewMemoryStore()
			require.NoError(t, kv.Set(ctx, DataKey, []byte(tt.data), 0))
			require.NoError(t, kv.Set(ctx, StepKey, []byte(tt.step), 0))

			data, step := NewStorePersistence(kv, nil).Load(ctx)
			assert.Equal(t, tt.wantName, data.Name)
			assert.Equal(t, tt.wantStep, step)
		})
	}
}

func TestStorePersistence_Clear(t *testing.T) {
	ctx := context.Background()
	kv := state.NewMemoryStore()
	p := NewStorePersistence(kv, nil)

	require.NoError(t, p.SaveData(ctx, forms.FormData{Name: "x"}))
	require.NoError(t, p.SaveStep(ctx, StepAddress))
	require.NoError(t, p.Clear(ctx))

	for _, key := range []string{DataKey, StepKey} {
		ok, err := kv.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	require.NoError(t, p.Clear(ctx), "clearing twice is fine")
}
