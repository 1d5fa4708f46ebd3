package vklog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestCLIDebugfRespectsIsDebug(t *testing.T) {
	logger := &CLI{}
	require.NotPanics(t, func() { logger.Debugf("quiet by default") })

	logger.IsDebug = true
	require.NotPanics(t, func() { logger.Debugf("now debugging") })
}

func TestCLIFormatDisableColorsPrintsPlain(t *testing.T) {
	logger := &CLI{DisableColors: true}

	out, err := logger.Format(&logrus.Entry{Message: "plain message", Level: logrus.WarnLevel})
	require.NoError(t, err)
	require.Equal(t, "plain message\n", string(out))
}

func TestNilProgressTracksCursor(t *testing.T) {
	p := &nilProgress{total: 100}
	n, err := p.Write([]byte("12345"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	p.Increment(10)
	require.NotPanics(t, func() { p.Finish(true) })
}

func TestNewProgressReturnsNilProgressWhenTTYDisabled(t *testing.T) {
	logger := &CLI{DisableTTY: true}
	p := logger.NewProgress("downloading", 1024)
	_, ok := p.(*nilProgress)
	require.True(t, ok)
}

func TestCLIFormatUncoloredForUnmappedLevel(t *testing.T) {
	logger := &CLI{}
	out, err := logger.Format(&logrus.Entry{Message: "hello", Level: logrus.InfoLevel})
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(out))
}
