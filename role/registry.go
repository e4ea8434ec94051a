package role

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownRole means the role name is not in the registry.
var ErrUnknownRole = errors.New("role not registered")

// Registry maps role names to bit positions within a [Mask]. Bit 0 is
// pre-assigned to the base-user role and cannot be reassigned.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates a role [Registry] with the canonical marketplace
// roles already assigned.
func NewRegistry() *Registry {
	r := &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
	for name, bit := range map[string]int{
		"user":    0,
		"courier": 1,
		"seller":  2,
		"admin":   3,
		"support": 4,
	} {
		r.nameToBit[name] = bit
		r.bitToName[bit] = name
	}
	return r
}

// Register assigns the next free bit to the named role and returns its
// index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}
	if name == "" {
		return -1, errors.New("role name cannot be empty")
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("role already registered")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= 64 {
		return -1, errors.New("role limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	return nextBit, nil
}

// MaskFor builds a mask from role names. Unknown names fail. The
// base-user bit is always included.
func (r *Registry) MaskFor(names ...string) (Mask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := User
	for _, name := range names {
		bit, ok := r.nameToBit[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		m |= 1 << bit
	}
	return m, nil
}

// Names decodes a mask into the sorted-by-bit list of role names it grants.
func (r *Registry) Names(m Mask) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for bit := 0; bit < 64; bit++ {
		if m&(1<<bit) == 0 {
			continue
		}
		if name, ok := r.bitToName[bit]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Bit returns the bit index for the named role, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered roles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
