package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFindsRegisteredSymbol(t *testing.T) {
	tab := New(
		Symbol{Name: "badgevms_malloc", Address: 0x1000},
		Symbol{Name: "badgevms_free", Address: 0x1010},
	)

	addr, err := tab.Resolve("badgevms_free")
	require.NoError(t, err)
	require.Equal(t, uintptr(0x1010), addr)
}

func TestResolveUnknownSymbolFails(t *testing.T) {
	tab := New(Symbol{Name: "badgevms_malloc", Address: 0x1000})

	_, err := tab.Resolve("does_not_exist")
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestAddIsVisibleToResolve(t *testing.T) {
	tab := New()
	tab.Add("socket_connect", 0x2000)

	addr, err := tab.Resolve("socket_connect")
	require.NoError(t, err)
	require.Equal(t, uintptr(0x2000), addr)
}

func TestResolveAllStopsAtFirstUnresolved(t *testing.T) {
	tab := New(Symbol{Name: "a", Address: 1})

	_, err := tab.ResolveAll([]string{"a", "missing"})
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestResolveAllReturnsEveryAddress(t *testing.T) {
	tab := New(Symbol{Name: "a", Address: 1}, Symbol{Name: "b", Address: 2})

	resolved, err := tab.ResolveAll([]string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, uintptr(1), resolved["a"])
	require.Equal(t, uintptr(2), resolved["b"])
}
