package httpapi

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptocj520/arbmon/internal/metrics"
)

func newTestRegistry(t *testing.T) *metrics.Registry {
	t.Helper()
	return metrics.NewRegistry()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
