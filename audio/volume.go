package audio

import "sync"

// volumeTable combines per-item, per-category, and master levels under
// the child-safety ceiling
type volumeTable struct {
	mu       sync.RWMutex
	master   float64
	ceiling  float64
	category [categoryCount]float64
}

func newVolumeTable(cfg *Config) *volumeTable {
	vt := &volumeTable{
		master:  cfg.MasterVolume,
		ceiling: cfg.SafetyCeiling,
	}
	for i := range vt.category {
		vt.category[i] = 1.0
	}
	for name, vol := range cfg.CategoryVolumes {
		for _, c := range Categories() {
			if c.String() == name {
				vt.category[c] = vol
			}
		}
	}
	return vt
}

// effective computes clamp(item * category * master, 0, ceiling).
// Inputs outside [0,1] are clamped here rather than rejected: the
// ceiling holds no matter what callers pass in.
func (vt *volumeTable) effective(item float64, cat Category) float64 {
	vt.mu.RLock()
	defer vt.mu.RUnlock()

	v := item * vt.category[cat] * vt.master
	if v < 0 {
		return 0
	}
	if v > vt.ceiling {
		return vt.ceiling
	}
	return v
}

func (vt *volumeTable) setMaster(v float64) {
	vt.mu.Lock()
	vt.master = clampUnit(v)
	vt.mu.Unlock()
}

func (vt *volumeTable) getMaster() float64 {
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.master
}

func (vt *volumeTable) setCategory(cat Category, v float64) {
	if !cat.valid() {
		return
	}
	vt.mu.Lock()
	vt.category[cat] = clampUnit(v)
	vt.mu.Unlock()
}

func (vt *volumeTable) getCategory(cat Category) float64 {
	if !cat.valid() {
		return 0
	}
	vt.mu.RLock()
	defer vt.mu.RUnlock()
	return vt.category[cat]
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
