// Package feedback contains the fixed feedback taxonomy and the codecs that
// move an event across the datagram channel and the durable sink.
// This package has NO external dependencies (no GPIO, network, or OS).
package feedback

import (
	"errors"
	"fmt"
)

// Color is the caregiver-facing color token carried on the wire.
type Color string

const (
	ColorRed    Color = "RED"
	ColorYellow Color = "YELLOW"
	ColorGreen  Color = "GREEN"
	ColorBlue   Color = "BLUE"
	ColorCyan   Color = "CYAN"
)

// Pattern is the on/off state of each LED channel during a flash.
type Pattern struct {
	Red   bool
	Green bool
	Blue  bool
}

// Off is the all-outputs-off pattern.
var Off = Pattern{}

// Category is one entry of the fixed feedback table.
type Category struct {
	ID      int
	Label   string
	Color   Color
	Pattern Pattern
	Meaning string // caregiver-facing name of the color
	Action  string // suggested caregiver response
}

// Event is a logical feedback event produced by one accepted button press.
// Immutable once created.
type Event struct {
	Category Category
}

// ID returns the category id (1-5).
func (e Event) ID() int { return e.Category.ID }

// Label returns the category label, e.g. "pain".
func (e Event) Label() string { return e.Category.Label }

// Color returns the wire color token.
func (e Event) Color() Color { return e.Category.Color }

var (
	// ErrUnknownCategory is returned for ids, labels or colors outside the table.
	ErrUnknownCategory = errors.New("feedback: unknown category")
)

// NumCategories is the number of physical inputs on a sender.
const NumCategories = 5

// Yellow and cyan are mixed from two channels.
var categories = [NumCategories]Category{
	{ID: 1, Label: "tired", Color: ColorRed, Pattern: Pattern{Red: true}, Meaning: "Tired", Action: "Offer rest and check in"},
	{ID: 2, Label: "space", Color: ColorYellow, Pattern: Pattern{Red: true, Green: true}, Meaning: "Space", Action: "Give space but stay available"},
	{ID: 3, Label: "company", Color: ColorGreen, Pattern: Pattern{Green: true}, Meaning: "Company", Action: "Provide company and engage"},
	{ID: 4, Label: "pain", Color: ColorBlue, Pattern: Pattern{Blue: true}, Meaning: "Pain", Action: "Check for pain and provide help"},
	{ID: 5, Label: "music", Color: ColorCyan, Pattern: Pattern{Green: true, Blue: true}, Meaning: "Music", Action: "Play music or offer entertainment"},
}

// Categories returns a copy of the fixed table ordered by id.
func Categories() []Category {
	out := make([]Category, NumCategories)
	copy(out, categories[:])
	return out
}

// ByID looks up a category by its id.
func ByID(id int) (Category, error) {
	if id < 1 || id > NumCategories {
		return Category{}, fmt.Errorf("%w: id %d", ErrUnknownCategory, id)
	}
	return categories[id-1], nil
}

// ByLabel looks up a category by its label.
func ByLabel(label string) (Category, error) {
	for _, c := range categories {
		if c.Label == label {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: label %q", ErrUnknownCategory, label)
}

// ByColor looks up a category by its color token.
func ByColor(color Color) (Category, error) {
	for _, c := range categories {
		if c.Color == color {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: color %q", ErrUnknownCategory, color)
}

// NewEvent creates the event for a category id.
func NewEvent(id int) (Event, error) {
	c, err := ByID(id)
	if err != nil {
		return Event{}, err
	}
	return Event{Category: c}, nil
}

// PatternFor maps a received payload to an actuator pattern. The payload may be
// a color token or a category label, depending on which sender variant sent it.
func PatternFor(token string) (Category, bool) {
	if c, err := ByColor(Color(token)); err == nil {
		return c, true
	}
	if c, err := ByLabel(token); err == nil {
		return c, true
	}
	return Category{}, false
}
