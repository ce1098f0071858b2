package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Event names accepted from the presentation layer.
const (
	EventFieldChanged = "fieldChanged"
	EventFieldBlurred = "fieldBlurred"
	EventGoNext       = "goNext"
	EventGoBack       = "goBack"
	EventGoToStep     = "goToStep"
	EventSubmit       = "submit"
)

// Event errors.
var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// HandleEvent dispatches a presentation event to the controller.
// Payloads follow the JSON shapes sent by the client:
// fieldChanged/fieldBlurred {"name","value"}, goToStep {"step"}.
func (c *Controller) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case EventFieldChanged, EventFieldBlurred:
		name, ok := payload["name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("%w: %s needs a field name", ErrInvalidPayload, event)
		}
		value, ok := payload["value"].(string)
		if !ok && payload["value"] != nil {
			return fmt.Errorf("%w: %s value must be a string", ErrInvalidPayload, event)
		}
		if event == EventFieldChanged {
			return c.SetField(ctx, name, value)
		}
		return c.TouchField(ctx, name, value)

	case EventGoNext:
		return c.Next(ctx)

	case EventGoBack:
		return c.Back(ctx)

	case EventGoToStep:
		step, err := stepFromPayload(payload["step"])
		if err != nil {
			return err
		}
		return c.JumpTo(ctx, step)

	case EventSubmit:
		return c.Submit(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

func stepFromPayload(v any) (Step, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: step %v is not an integer", ErrInvalidPayload, n)
		}
		return Step(int(n)), nil
	case int:
		return Step(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: step %q", ErrInvalidPayload, n)
		}
		return Step(i), nil
	default:
		return 0, fmt.Errorf("%w: missing step", ErrInvalidPayload)
	}
}
