package format

import (
	"github.com/spf13/cast"

	"github.com/joescharf/tracker/internal/models"
)

// Priority describes a priority level for display.
type Priority struct {
	Value int
	Label string
	Color string
}

// Priorities lists the known levels, most urgent first.
var Priorities = []Priority{
	{Value: 1, Label: "Top Priority", Color: "bg-slate-600"},
	{Value: 2, Label: "Major Project", Color: "bg-slate-600"},
	{Value: 3, Label: "Important", Color: "bg-slate-600"},
	{Value: 4, Label: "Minor", Color: "bg-slate-600"},
	{Value: 5, Label: "Pending", Color: "bg-slate-600"},
}

// PriorityLabel returns the level for v. Anything that is not an integer
// between 1 and 5 maps to the default level ("Important").
func PriorityLabel(v any) Priority {
	n, err := cast.ToIntE(v)
	if err == nil {
		for _, p := range Priorities {
			if p.Value == n {
				return p
			}
		}
	}
	return Priorities[models.PriorityDefault-1]
}

// PriorityText returns the label text for v.
func PriorityText(v any) string { return PriorityLabel(v).Label }

// PriorityColor returns the color class for v.
func PriorityColor(v any) string { return PriorityLabel(v).Color }
