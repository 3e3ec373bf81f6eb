package accel

import (
	"fmt"
	"sync"

	"ising/internal/core"
	rng "ising/pkg/core"
)

// KernelID identifies an entry in the kernel catalog.
type KernelID uint8

// Kernel computes the output of a single cell. It must read only from in and
// write only out[cell].
type Kernel func(cell int, in, out []core.Spin, p Params, u rng.Uniform)

var (
	catalogMu sync.RWMutex
	catalog   = map[KernelID]Kernel{}
)

// RegisterKernel adds k to the catalog under id. Registering the same id twice panics.
func RegisterKernel(id KernelID, k Kernel) {
	if k == nil {
		panic("accel: nil kernel")
	}
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[id]; dup {
		panic(fmt.Sprintf("accel: kernel %d registered twice", id))
	}
	catalog[id] = k
}

func lookupKernel(id KernelID) (Kernel, error) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	k, ok := catalog[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKernel, id)
	}
	return k, nil
}
