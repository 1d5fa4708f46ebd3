// Package symtab implements the host symbol table ProcessMgr resolves a
// relocatable image's external references against: a sorted (name,
// address) table searched with binary search, grounded on
// main/symbol_table.c and components/elf_loader/src/esp_elf_symbol.c from
// the original firmware.
package symtab

import (
	"sort"

	"github.com/pkg/errors"
)

// Symbol is one (name, address) entry in the table.
type Symbol struct {
	Name    string
	Address uintptr
}

// ErrUnresolved is returned by Resolve when no symbol matches.
var ErrUnresolved = errors.New("symtab: unresolved symbol")

// Table is a sorted symbol table supporting binary-search lookup. The zero
// value is an empty, usable table.
type Table struct {
	symbols []Symbol
	sorted  bool
}

// New builds a table from libc/math/sockets/BadgeVMS API symbols. Host
// binaries register their exported entry points here instead of linking
// against a real libc, the same role esp_elf_symbol.c's generated table
// plays for relocatable ELF images on-device.
func New(symbols ...Symbol) *Table {
	t := &Table{symbols: append([]Symbol(nil), symbols...)}
	t.sort()
	return t
}

func (t *Table) sort() {
	sort.Slice(t.symbols, func(i, j int) bool { return t.symbols[i].Name < t.symbols[j].Name })
	t.sorted = true
}

// Add registers one more symbol, re-sorting lazily on the next Resolve.
func (t *Table) Add(name string, address uintptr) {
	t.symbols = append(t.symbols, Symbol{Name: name, Address: address})
	t.sorted = false
}

// Resolve looks up name with binary search, mirroring elf_find_sym's
// bsearch over g_why2025_libc_elfsyms. An unresolved lookup fails only the
// caller's spawn attempt, not the whole host process.
func (t *Table) Resolve(name string) (uintptr, error) {
	if !t.sorted {
		t.sort()
	}

	i := sort.Search(len(t.symbols), func(i int) bool { return t.symbols[i].Name >= name })
	if i < len(t.symbols) && t.symbols[i].Name == name {
		return t.symbols[i].Address, nil
	}
	return 0, errors.Wrapf(ErrUnresolved, "symbol %q", name)
}

// ResolveAll resolves every name in names, returning the first unresolved
// symbol as a descriptive diagnostic (ProcessMgr.Spawn's failure mode).
func (t *Table) ResolveAll(names []string) (map[string]uintptr, error) {
	resolved := make(map[string]uintptr, len(names))
	for _, name := range names {
		addr, err := t.Resolve(name)
		if err != nil {
			return nil, err
		}
		resolved[name] = addr
	}
	return resolved, nil
}
