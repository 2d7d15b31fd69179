package features

import "tourist-safety-engine/internal/domain"

// Window is a fixed-capacity ring of feature vectors. Newest evicts oldest.
// Not safe for concurrent use.
type Window struct {
	buf   []domain.FeatureVector
	start int
	n     int
}

// NewWindow creates a window holding up to capacity entries.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]domain.FeatureVector, capacity)}
}

// Push appends fv, evicting the oldest entry when full.
func (w *Window) Push(fv domain.FeatureVector) {
	idx := (w.start + w.n) % len(w.buf)
	w.buf[idx] = fv
	if w.n < len(w.buf) {
		w.n++
		return
	}
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of stored entries.
func (w *Window) Len() int { return w.n }

// Newest returns the most recent entry.
func (w *Window) Newest() (domain.FeatureVector, bool) {
	if w.n == 0 {
		return domain.FeatureVector{}, false
	}
	return w.buf[(w.start+w.n-1)%len(w.buf)], true
}

// Snapshot copies the entries, oldest first.
func (w *Window) Snapshot() []domain.FeatureVector {
	out := make([]domain.FeatureVector, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
