package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

// Storage keys of the persisted wizard state.
const (
	DataKey = "multistepFormData"
	StepKey = "multistepFormStep"
)

// Persistence mirrors form data and the current step to durable storage.
type Persistence interface {
	// Load returns the stored state. Missing or unreadable entries fall back
	// to empty data and StepPersonal independently; Load never fails.
	Load(ctx context.Context) (forms.FormData, Step)

	// SaveData writes the form data.
	SaveData(ctx context.Context, data forms.FormData) error

	// SaveStep writes the current step.
	SaveStep(ctx context.Context, step Step) error

	// Clear removes both entries.
	Clear(ctx context.Context) error
}

// StorePersistence implements Persistence on a state.Store: form data as a
// JSON object, the step as a decimal string.
type StorePersistence struct {
	store state.Store
	log   logging.Logger
}

// NewStorePersistence creates a persistence adapter over store.
func NewStorePersistence(store state.Store, log logging.Logger) *StorePersistence {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &StorePersistence{store: store, log: log}
}

func (p *StorePersistence) Load(ctx context.Context) (forms.FormData, Step) {
	return p.loadData(ctx), p.loadStep(ctx)
}

func (p *StorePersistence) loadData(ctx context.Context) forms.FormData {
	var data forms.FormData

	raw, err := p.store.Get(ctx, DataKey)
	if err != nil {
		if !errors.Is(err, state.ErrKeyNotFound) {
			p.log.Warn("load form data", logging.Err(err))
		}
		return data
	}

	if err := sonic.Unmarshal(raw, &data); err != nil {
		p.log.Debug("discarding unreadable form data", logging.Err(err))
		return forms.FormData{}
	}
	return data
}

func (p *StorePersistence) loadStep(ctx context.Context) Step {
	raw, err := p.store.Get(ctx, StepKey)
	if err != nil {
		if !errors.Is(err, state.ErrKeyNotFound) {
			p.log.Warn("load step", logging.Err(err))
		}
		return StepPersonal
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || !Step(n).Valid() {
		p.log.Debug("discarding unreadable step", logging.String("raw", string(raw)))
		return StepPersonal
	}
	return Step(n)
}

func (p *StorePersistence) SaveData(ctx context.Context, data forms.FormData) error {
	raw, err := sonic.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	if err := p.store.Set(ctx, DataKey, raw, 0); err != nil {
		return fmt.Errorf("save form data: %w", err)
	}
	return nil
}

func (p *StorePersistence) SaveStep(ctx context.Context, step Step) error {
	if err := p.store.Set(ctx, StepKey, []byte(step.String()), 0); err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

func (p *StorePersistence) Clear(ctx context.Context) error {
	return errors.Join(
		p.store.Delete(ctx, DataKey),
		p.store.Delete(ctx, StepKey),
	)
}

// NopPersistence keeps nothing.
type NopPersistence struct{}

func (NopPersistence) Load(context.Context) (forms.FormData, Step) {
	return forms.FormData{}, StepPersonal
}

func (NopPersistence) SaveData(context.Context, forms.FormData) error { return nil }

func (NopPersistence) SaveStep(context.Context, Step) error { return nil }

func (NopPersistence) Clear(context.Context) error { return nil }
