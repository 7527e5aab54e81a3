package content

import "sync"

// Library supplies bilingual content by logical key. Implemented by the
// surrounding content layer; StaticLibrary covers tests and tools.
type Library interface {
	Lookup(key string) (*Content, bool)
}

// StaticLibrary is an in-memory Library
type StaticLibrary struct {
	mu      sync.RWMutex
	entries map[string]*Content
}

// NewStaticLibrary creates an empty library
func NewStaticLibrary() *StaticLibrary {
	return &StaticLibrary{
		entries: make(map[string]*Content),
	}
}

// Register adds content under its ID, replacing any previous entry
func (l *StaticLibrary) Register(c *Content) {
	l.mu.Lock()
	l.entries[c.ID] = c
	l.mu.Unlock()
}

// Lookup implements Library
func (l *StaticLibrary) Lookup(key string) (*Content, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.entries[key]
	return c, ok
}

// Keys returns all registered content IDs
func (l *StaticLibrary) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	return keys
}
