package engine

import (
	"testing"

	"github.com/wippyai/wasm-engine/wasm"
)

func TestMemoryDefaultOnePage(t *testing.T) {
	m := NewMemory(wasm.Limits{})
	if m.Size() != wasm.PageSize || m.Pages() != 1 {
		t.Errorf("size = %d bytes / %d pages", m.Size(), m.Pages())
	}
}

func TestMemoryDeclaredMinimum(t *testing.T) {
	m := NewMemory(wasm.Limits{Min: 3})
	if m.Pages() != 3 {
		t.Errorf("pages = %d, want 3", m.Pages())
	}
}

func TestMemoryGrowPages(t *testing.T) {
	m := NewMemory(wasm.Limits{})
	if old := m.Grow(2); old != 1 {
		t.Errorf("Grow(2) = %d, want old size 1", old)
	}
	if m.Pages() != 3 {
		t.Errorf("pages = %d, want 3", m.Pages())
	}
	if old := m.Grow(0); old != 3 {
		t.Errorf("Grow(0) = %d, want 3", old)
	}
}

func TestMemoryGrowRespectsMax(t *testing.T) {
	m := NewMemory(wasm.Limits{Min: 1, Max: 2, HasMax: true})
	if got := m.Grow(2); got != -1 {
		t.Errorf("Grow past max = %d, want -1", got)
	}
	if got := m.Grow(1); got != 1 {
		t.Errorf("Grow to max = %d, want 1", got)
	}
	if got := m.Grow(1); got != -1 {
		t.Errorf("Grow at max = %d, want -1", got)
	}
}

func TestMemoryBoundsRule(t *testing.T) {
	m := NewMemory(wasm.Limits{})
	size := m.Size()

	// addr + width > size traps; addr + width == size is the last
	// valid access.
	if _, ok := m.readU32(size - 4); !ok {
		t.Error("read at size-4 must succeed")
	}
	if _, ok := m.readU32(size - 3); ok {
		t.Error("read at size-3 must fail")
	}
	if _, ok := m.readU8(size - 1); !ok {
		t.Error("read of last byte must succeed")
	}
	if _, ok := m.readU8(size); ok {
		t.Error("read at size must fail")
	}
	if ok := m.writeU64(size-8, 1); !ok {
		t.Error("write at size-8 must succeed")
	}
	if ok := m.writeU64(size-7, 1); ok {
		t.Error("write at size-7 must fail")
	}
}

func TestMemoryLittleEndian(t *testing.T) {
	m := NewMemory(wasm.Limits{})
	m.writeU32(0, 0x11223344)
	if b, _ := m.readU8(0); b != 0x44 {
		t.Errorf("low byte first: got %#x", b)
	}
	if b, _ := m.readU8(3); b != 0x11 {
		t.Errorf("high byte last: got %#x", b)
	}
	// Misaligned access is permitted.
	if v, ok := m.readU32(1); !ok || v != 0x00112233 {
		t.Errorf("misaligned read = %#x, ok=%v", v, ok)
	}
}

func TestMemoryBytesAlias(t *testing.T) {
	m := NewMemory(wasm.Limits{})
	m.writeU8(10, 0xAB)
	b, ok := m.Bytes(10)
	if !ok || b[0] != 0xAB {
		t.Errorf("Bytes(10)[0] = %#x, ok=%v", b[0], ok)
	}
	if _, ok := m.Bytes(m.Size() + 1); ok {
		t.Error("Bytes past the end must fail")
	}
}
