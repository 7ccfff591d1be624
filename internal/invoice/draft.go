package invoice

import (
	"sort"
	"sync"

	"smartqr/internal/models"

	"github.com/google/uuid"
)

// Draft is the ordered list of lines an invoice builder accumulates
// before it is flushed.
type Draft struct {
	ID string

	mu    sync.Mutex
	lines []models.InvoiceLine
}

// NewDraft returns an empty draft with a fresh ID.
func NewDraft() *Draft {
	return &Draft{ID: uuid.NewString()}
}

// Add appends a line.
func (d *Draft) Add(l models.InvoiceLine) {
	d.mu.Lock()
	d.lines = append(d.lines, l)
	d.mu.Unlock()
}

// Remove deletes the lines at the given positions. Positions are removed
// from highest to lowest so earlier removals do not shift later ones;
// duplicates and out-of-range positions are ignored.
func (d *Draft) Remove(positions ...int) []models.InvoiceLine {
	d.mu.Lock()
	defer d.mu.Unlock()

	uniq := map[int]bool{}
	for _, p := range positions {
		if p >= 0 && p < len(d.lines) {
			uniq[p] = true
		}
	}
	order := make([]int, 0, len(uniq))
	for p := range uniq {
		order = append(order, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(order)))

	var removed []models.InvoiceLine
	for _, p := range order {
		removed = append(removed, d.lines[p])
		d.lines = append(d.lines[:p], d.lines[p+1:]...)
	}
	return removed
}

// Lines returns a copy of the current lines.
func (d *Draft) Lines() []models.InvoiceLine {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.InvoiceLine, len(d.lines))
	copy(out, d.lines)
	return out
}

// Len returns the number of lines.
func (d *Draft) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

// Clear drops every line.
func (d *Draft) Clear() {
	d.mu.Lock()
	d.lines = nil
	d.mu.Unlock()
}

// Drafts tracks the drafts of the invoice builders currently open.
type Drafts struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

// NewDrafts returns an empty registry.
func NewDrafts() *Drafts {
	return &Drafts{drafts: map[string]*Draft{}}
}

// Open starts a new draft.
func (r *Drafts) Open() *Draft {
	d := NewDraft()
	r.mu.Lock()
	r.drafts[d.ID] = d
	r.mu.Unlock()
	return d
}

// Get returns an open draft.
func (r *Drafts) Get(id string) (*Draft, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	return d, ok
}

// Discard closes a draft and reports whether it was open.
func (r *Drafts) Discard(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.drafts[id]
	delete(r.drafts, id)
	return ok
}
