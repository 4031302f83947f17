// Package widgets holds small presentation controls shared by the console views.
package widgets

import (
	"fmt"
	"io"
)

// Toggle is a two-state switch. It keeps no state of its own: Checked is
// supplied by the owner on every render and OnChange reports the value the
// user asked for.
type Toggle struct {
	Label       string
	Description string
	Checked     bool
	OnChange    func(checked bool)
}

// Flip reports the inverse of Checked to OnChange. It does not modify t.
func (t Toggle) Flip() {
	if t.OnChange != nil {
		t.OnChange(!t.Checked)
	}
}

// Render writes the switch as one line, followed by the description when
// there is one.
func (t Toggle) Render(w io.Writer) error {
	mark := " "
	if t.Checked {
		mark = "x"
	}
	if _, err := fmt.Fprintf(w, "[%s] %s\n", mark, t.Label); err != nil {
		return fmt.Errorf("render toggle %q: %w", t.Label, err)
	}
	if t.Description == "" {
		return nil
	}
	if _, err := fmt.Fprintf(w, "    %s\n", t.Description); err != nil {
		return fmt.Errorf("render toggle %q: %w", t.Label, err)
	}
	return nil
}
