package vpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidDeviceOnly(t *testing.T) {
	p, err := Parse("FLASH0:")
	require.NoError(t, err)
	require.Equal(t, "FLASH0", p.Device)
	require.Empty(t, p.Directory)
	require.Empty(t, p.Filename)
}

func TestParseFull(t *testing.T) {
	p, err := Parse("FLASH0:[SUBDIR.ANOTHER]NEW_FILE")
	require.NoError(t, err)
	require.Equal(t, "FLASH0", p.Device)
	require.Equal(t, "SUBDIR.ANOTHER", p.Directory)
	require.Equal(t, "NEW_FILE", p.Filename)
	require.Equal(t, "/FLASH0/SUBDIR/ANOTHER/NEW_FILE", p.Native())
}

func TestNativeIsIdempotent(t *testing.T) {
	p, err := Parse("FLASH0:[SUBDIR]FILE")
	require.NoError(t, err)
	first := p.Native()
	second := p.Native()
	require.Equal(t, first, second)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want ParseResult
	}{
		{"empty", "", ParseEmptyPath},
		{"empty device", ":FILE", ParseEmptyDevice},
		{"no device", "DEVICE", ParseNoDevice},
		{"unclosed dir", "DEVICE:[sub.dir", ParseUnclosedDirectory},
		{"bad device char", "DEV ICE:FILE", ParseInvalidDeviceChar},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.want, perr.Result)
		})
	}
}

func TestDirnameBasenameDevname(t *testing.T) {
	native := "/FLASH0/SUBDIR/ANOTHER/NEW_FILE"
	require.Equal(t, "/FLASH0/SUBDIR/ANOTHER", Dirname(native))
	require.Equal(t, "NEW_FILE", Basename(native))
	require.Equal(t, "FLASH0", Devname(native))
}

func TestConcatHelpers(t *testing.T) {
	require.Equal(t, "/FLASH0/SUB", Dirconcat("/FLASH0", "SUB"))
	require.Equal(t, "/FLASH0/FILE", Fileconcat("/FLASH0", "FILE"))
	require.Equal(t, "/FLASH0/SUB/FILE", Concat("/FLASH0/SUB", "FILE"))
	require.Equal(t, "/FLASH0", Concat("/FLASH0", ""))
}

func TestValidDeviceName(t *testing.T) {
	require.True(t, ValidDeviceName("com_example_myapp"))
	require.False(t, ValidDeviceName(""))
	require.False(t, ValidDeviceName("bad name"))
}
