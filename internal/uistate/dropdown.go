package uistate

// SuggestionDropdown tracks an open list of n suggestions and the selected
// row. Moving past either end wraps around.
type SuggestionDropdown struct {
	open     bool
	count    int
	selected int
}

func (d *SuggestionDropdown) IsOpen() bool { return d.open }

// Show opens the dropdown for n items and selects the first. With no items
// the dropdown closes.
func (d *SuggestionDropdown) Show(n int) {
	if n <= 0 {
		d.Close()
		return
	}
	d.open = true
	d.count = n
	d.selected = 0
}

func (d *SuggestionDropdown) Close() {
	d.open = false
	d.count = 0
	d.selected = -1
}

// Selected returns the selected index, or -1 when closed.
func (d *SuggestionDropdown) Selected() int {
	if !d.open {
		return -1
	}
	return d.selected
}

func (d *SuggestionDropdown) Next() { d.move(1) }

func (d *SuggestionDropdown) Prev() { d.move(-1) }

func (d *SuggestionDropdown) move(step int) {
	if !d.open || d.count == 0 {
		return
	}
	d.selected = ((d.selected+step)%d.count + d.count) % d.count
}

// Choose returns the selected index and closes the dropdown.
func (d *SuggestionDropdown) Choose() (int, bool) {
	if !d.open {
		return -1, false
	}
	i := d.selected
	d.Close()
	return i, true
}
