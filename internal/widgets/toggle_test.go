package widgets

import (
	"bytes"
	"testing"
)

func TestToggle_Flip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		checked bool
		want    bool
	}{
		{name: "on requests off", checked: true, want: false},
		{name: "off requests on", checked: false, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []bool
			toggle := Toggle{
				Label:    "Caching",
				Checked:  tt.checked,
				OnChange: func(v bool) { got = append(got, v) },
			}
			toggle.Flip()

			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("Expected OnChange(%v) once, got %v", tt.want, got)
			}
			if toggle.Checked != tt.checked {
				t.Error("Expected Flip to leave Checked untouched")
			}
		})
	}
}

func TestToggle_FlipWithoutHandler(t *testing.T) {
	t.Parallel()

	Toggle{Label: "WAF"}.Flip()
}

func TestToggle_Render(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		toggle Toggle
		want   string
	}{
		{
			name:   "checked with description",
			toggle: Toggle{Label: "Rate Limiting", Description: "Limit requests per client", Checked: true},
			want:   "[x] Rate Limiting\n    Limit requests per client\n",
		},
		{
			name:   "unchecked without description",
			toggle: Toggle{Label: "WAF"},
			want:   "[ ] WAF\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			if err := tt.toggle.Render(&buf); err != nil {
				t.Fatalf("Render: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, buf.String())
			}
		})
	}
}
