// Package cache implements the page manager the verifier reads
// through: it pins pages by (address, size) from a block device and
// tracks outstanding pins.
package cache

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-bstore/internal/interfaces"
)

// pageHandle is a pinned page backed by a private copy of the file
// bytes.
type pageHandle struct {
	addr uint64
	size uint32
	data []byte
}

// Addr returns the page's allocation-unit address.
func (h *pageHandle) Addr() uint64 {
	return h.addr
}

// Size returns the page's byte length.
func (h *pageHandle) Size() uint32 {
	return h.size
}

// Data returns the page's raw bytes.
func (h *pageHandle) Data() []byte {
	return h.data
}

// Manager reads pages from a device and hands out pinned handles.
type Manager struct {
	device interfaces.Device
	alloc  uint32

	mu   sync.Mutex
	pins int

	// retryHook, when set, is consulted before each read; returning
	// true makes the pin fail with ErrPinRetry. Tests use it to
	// exercise the caller's retry loop.
	retryHook func(addr uint64, size uint32) bool
}

// NewManager returns a page manager over a device with the given
// allocation unit.
func NewManager(device interfaces.Device, alloc uint32) *Manager {
	return &Manager{
		device: device,
		alloc:  alloc,
	}
}

// Pin reads and pins the page at the given allocation-unit address
// and byte length.
func (m *Manager) Pin(addr uint64, size uint32) (interfaces.PageHandle, error) {
	if size == 0 {
		return nil, fmt.Errorf("pin of zero-length page at address %d", addr)
	}

	m.mu.Lock()
	hook := m.retryHook
	m.mu.Unlock()
	if hook != nil && hook(addr, size) {
		return nil, interfaces.ErrPinRetry
	}

	offset := int64(addr) * int64(m.alloc)
	if offset < 0 || offset+int64(size) > m.device.Size() {
		return nil, fmt.Errorf("page %d/%d extends past the end of the device (%d bytes)",
			addr, size, m.device.Size())
	}

	data := make([]byte, size)
	if _, err := m.device.ReadAt(data, offset); err != nil {
		return nil, fmt.Errorf("failed to read page %d/%d: %w", addr, size, err)
	}

	m.mu.Lock()
	m.pins++
	m.mu.Unlock()

	return &pageHandle{addr: addr, size: size, data: data}, nil
}

// Unpin releases a pinned page.
func (m *Manager) Unpin(handle interfaces.PageHandle) {
	if handle == nil {
		return
	}
	m.mu.Lock()
	m.pins--
	m.mu.Unlock()
}

// Outstanding returns the number of pages currently pinned. A non-zero
// count after a verification run is a pin leak.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins
}

// SetRetryHook installs a hook consulted before each pin; returning
// true makes the pin fail with ErrPinRetry.
func (m *Manager) SetRetryHook(hook func(addr uint64, size uint32) bool) {
	m.mu.Lock()
	m.retryHook = hook
	m.mu.Unlock()
}
