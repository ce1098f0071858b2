package wizard

import (
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
)

// Snapshot is the state handed to the presentation layer.
type Snapshot struct {
	Step       Step           `json:"step"`
	Title      string         `json:"title"`
	Steps      []StepView     `json:"steps"`
	Fields     []forms.Field  `json:"fields"`
	Data       forms.FormData `json:"formData"`
	Errors     forms.ErrorMap `json:"errors"`
	Review     []ReviewItem   `json:"review"`
	Submitting bool           `json:"isSubmitting"`
	CanGoBack  bool           `json:"canGoBack"`
	IsLastStep bool           `json:"isLastStep"`
}

// StepView describes one tab of the step indicator.
type StepView struct {
	Index  Step   `json:"index"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
	Valid  bool   `json:"valid"`
}

// ReviewItem is one line of the confirmation summary.
type ReviewItem struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

func (c *Controller) snapshotLocked() Snapshot {
	schema := c.store.Schema()
	cur := c.store.Step()
	data := c.store.Data()

	snap := Snapshot{
		Step:       cur,
		Title:      cur.Title(),
		Steps:      make([]StepView, 0, StepCount),
		Fields:     []forms.Field{},
		Data:       data,
		Errors:     c.store.Errors(),
		Review:     []ReviewItem{},
		Submitting: c.submitting,
		CanGoBack:  cur > StepPersonal && !c.submitting,
		IsLastStep: cur == StepConfirmation,
	}

	for _, def := range stepTable {
		snap.Steps = append(snap.Steps, StepView{
			Index:  def.Step,
			Title:  def.Title,
			Active: def.Step == cur,
			Valid:  c.stepValidLocked(def.Step),
		})
	}

	if def, ok := Definition(cur); ok {
		for _, name := range def.Fields {
			if f, ok := schema.Field(name); ok {
				snap.Fields = append(snap.Fields, f)
			}
		}
	}

	if cur == StepConfirmation {
		snap.Review = Review(schema, data)
	}
	return snap
}

// Review lists every field for the confirmation step, in schema order.
// Optional fields left blank are omitted.
func Review(schema *forms.Schema, data forms.FormData) []ReviewItem {
	var items []ReviewItem
	for _, f := range schema.Fields() {
		v := data.Value(f.Name)
		if !f.Required && data.IsBlank(f.Name) {
			continue
		}
		items = append(items, ReviewItem{Field: f.Name, Label: reviewLabel(f), Value: v})
	}
	return items
}

func reviewLabel(f forms.Field) string {
	switch f.Name {
	case forms.KeyAddressLine1:
		return "Address"
	case forms.KeyAddressLine2:
		return "Address Line 2"
	default:
		return f.Label
	}
}
