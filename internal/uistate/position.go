package uistate

// DefaultMargin keeps popovers this many pixels away from the viewport edge
// and from their trigger.
const DefaultMargin = 8

type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Bottom() float64 { return r.Top + r.Height }

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Placement string

const (
	Below Placement = "below"
	Above Placement = "above"
)

type Position struct {
	Top       float64   `json:"top"`
	Left      float64   `json:"left"`
	Placement Placement `json:"placement"`
}

// Place positions a popover of the given size next to trigger. It prefers
// the space below the trigger and flips above when the popover does not fit
// below but does fit above. When it fits on neither side the roomier side
// wins. The result is clamped so the popover stays margin away from every
// viewport edge, as far as the viewport is large enough.
func Place(trigger Rect, popover, viewport Size, margin float64) Position {
	below := trigger.Bottom() + margin
	above := trigger.Top - margin - popover.Height

	roomBelow := viewport.Height - margin - trigger.Bottom() - margin
	roomAbove := trigger.Top - margin - margin

	pos := Position{Top: below, Placement: Below}
	if popover.Height > roomBelow && (popover.Height <= roomAbove || roomAbove > roomBelow) {
		pos = Position{Top: above, Placement: Above}
	}

	pos.Top = clamp(pos.Top, margin, viewport.Height-popover.Height-margin)
	pos.Left = clamp(trigger.Left, margin, viewport.Width-popover.Width-margin)
	return pos
}

// clamp bounds v to [lo, hi], preferring lo when the range is empty.
func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
