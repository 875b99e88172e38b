package engine

import (
	"encoding/binary"

	"github.com/wippyai/wasm-engine/wasm"
)

// Memory is an instance's linear memory: a flat byte vector grown in
// whole pages. Loads and stores are little-endian at byte granularity;
// misalignment is permitted.
type Memory struct {
	data     []byte
	maxPages uint32
}

// NewMemory creates a memory of one page unless the module declares a
// larger minimum. Decoded modules arrive with limits already validated
// against wasm.MemoryMaxPages; limits on a hand-built module are
// clamped to the same cap here so a hostile min cannot reach make()
// and abort the process.
func NewMemory(lim wasm.Limits) *Memory {
	minPages := lim.Min
	if minPages == 0 {
		minPages = 1
	}
	if minPages > wasm.MemoryMaxPages {
		minPages = wasm.MemoryMaxPages
	}
	maxPages := wasm.MemoryMaxPages
	if lim.HasMax && lim.Max < maxPages {
		maxPages = lim.Max
	}
	if maxPages < minPages {
		maxPages = minPages
	}
	return &Memory{
		data:     make([]byte, int(minPages)*int(wasm.PageSize)),
		maxPages: maxPages,
	}
}

// Size returns the current length in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	return uint32(len(m.data)) / wasm.PageSize
}

// Grow extends the memory by delta pages and returns the old size in
// pages, or -1 when the request exceeds the limit.
func (m *Memory) Grow(delta uint32) int32 {
	old := m.Pages()
	if delta > m.maxPages || old > m.maxPages-delta {
		return -1
	}
	m.data = append(m.data, make([]byte, int(delta)*int(wasm.PageSize))...)
	return int32(old)
}

// inBounds checks the access rule: addr + width must not exceed the
// memory length. The width is small, so overflow is checked in 64 bits.
func (m *Memory) inBounds(addr uint32, width uint32) bool {
	return uint64(addr)+uint64(width) <= uint64(len(m.data))
}

// Bytes exposes the raw memory starting at addr, for host interop. The
// slice aliases instance state and is invalidated by Grow.
func (m *Memory) Bytes(addr uint32) ([]byte, bool) {
	if addr > uint32(len(m.data)) {
		return nil, false
	}
	return m.data[addr:], true
}

func (m *Memory) readU8(addr uint32) (uint64, bool) {
	if !m.inBounds(addr, 1) {
		return 0, false
	}
	return uint64(m.data[addr]), true
}

func (m *Memory) readU16(addr uint32) (uint64, bool) {
	if !m.inBounds(addr, 2) {
		return 0, false
	}
	return uint64(binary.LittleEndian.Uint16(m.data[addr:])), true
}

func (m *Memory) readU32(addr uint32) (uint64, bool) {
	if !m.inBounds(addr, 4) {
		return 0, false
	}
	return uint64(binary.LittleEndian.Uint32(m.data[addr:])), true
}

func (m *Memory) readU64(addr uint32) (uint64, bool) {
	if !m.inBounds(addr, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), true
}

func (m *Memory) writeU8(addr uint32, v uint64) bool {
	if !m.inBounds(addr, 1) {
		return false
	}
	m.data[addr] = byte(v)
	return true
}

func (m *Memory) writeU16(addr uint32, v uint64) bool {
	if !m.inBounds(addr, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.data[addr:], uint16(v))
	return true
}

func (m *Memory) writeU32(addr uint32, v uint64) bool {
	if !m.inBounds(addr, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.data[addr:], uint32(v))
	return true
}

func (m *Memory) writeU64(addr uint32, v uint64) bool {
	if !m.inBounds(addr, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.data[addr:], v)
	return true
}
