package accel

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// Options configures a device.
type Options struct {
	// Workers bounds the number of blocks executing concurrently. The cpu
	// device treats zero as one worker per CPU.
	Workers int
	// MemoryLimit caps the bytes a device may allocate. Zero means unlimited.
	MemoryLimit int64
}

// DefaultOptions uses every CPU and no memory cap.
func DefaultOptions() Options {
	return Options{Workers: runtime.NumCPU()}
}

// Factory constructs a Device.
type Factory func(opts Options) Device

var (
	devicesMu sync.RWMutex
	devices   = map[string]Factory{}
)

// Register adds a device factory under the provided name.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	devicesMu.Lock()
	defer devicesMu.Unlock()
	devices[name] = f
}

// Devices lists the registered device names in sorted order.
func Devices() []string {
	devicesMu.RLock()
	defer devicesMu.RUnlock()
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the named device.
func Open(name string, opts Options) (Device, error) {
	devicesMu.RLock()
	f, ok := devices[name]
	devicesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDevice, name)
	}
	return f(opts), nil
}

func init() {
	Register("cpu", func(opts Options) Device {
		if opts.Workers <= 0 {
			opts.Workers = runtime.NumCPU()
		}
		return NewHost("cpu", opts)
	})
	Register("serial", func(opts Options) Device {
		opts.Workers = 1
		return NewHost("serial", opts)
	})
}
