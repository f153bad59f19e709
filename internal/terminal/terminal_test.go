package terminal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openOrSkip(t *testing.T, geom Geometry) *Pair {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pseudo-terminal support")
	}
	p, err := Open(geom, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestGeometryValid(t *testing.T) {
	tests := []struct {
		geom Geometry
		want bool
	}{
		{Geometry{24, 80}, true},
		{Geometry{1, 1}, true},
		{Geometry{0, 80}, false},
		{Geometry{24, 0}, false},
		{Geometry{-1, 80}, false},
		{Geometry{70000, 80}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.geom.Valid(), "%+v", tt.geom)
	}
}

func TestOpenAppliesGeometry(t *testing.T) {
	p := openOrSkip(t, Geometry{Rows: 24, Cols: 80})

	got, err := Size(p.Master)
	require.NoError(t, err)
	assert.Equal(t, Geometry{Rows: 24, Cols: 80}, got)
}

func TestOpenAppliesDiscipline(t *testing.T) {
	p := openOrSkip(t, Geometry{Rows: 24, Cols: 80})

	tio, err := unix.IoctlGetTermios(int(p.Slave.Fd()), ioctlGetTermios)
	require.NoError(t, err)

	assert.NotZero(t, tio.Lflag&unix.ICANON, "canonical mode")
	assert.NotZero(t, tio.Lflag&unix.ECHO, "echo")
	assert.NotZero(t, tio.Lflag&unix.ISIG, "signals")
	assert.NotZero(t, tio.Oflag&unix.OPOST, "output processing")
	assert.Equal(t, uint64(unix.CS8), uint64(tio.Cflag&unix.CSIZE))
	assert.Equal(t, uint8(0x03), tio.Cc[unix.VINTR])
	assert.Equal(t, uint8(0x7f), tio.Cc[unix.VERASE])
}

func TestOpenWithInvalidGeometryStillSucceeds(t *testing.T) {
	p := openOrSkip(t, Geometry{Rows: 0, Cols: 0})
	assert.NotNil(t, p.Master)
	assert.NotNil(t, p.Slave)
}

func TestResize(t *testing.T) {
	p := openOrSkip(t, Geometry{Rows: 24, Cols: 80})

	require.NoError(t, Resize(p.Master, Geometry{Rows: 50, Cols: 132}))
	got, err := Size(p.Master)
	require.NoError(t, err)
	assert.Equal(t, Geometry{Rows: 50, Cols: 132}, got)

	err = Resize(p.Master, Geometry{Rows: 0, Cols: 132})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	got, err = Size(p.Master)
	require.NoError(t, err)
	assert.Equal(t, Geometry{Rows: 50, Cols: 132}, got, "rejected resize leaves geometry alone")
}

func TestConfigureDisciplineOnNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notty")
	require.NoError(t, err)
	defer f.Close()

	assert.Error(t, ConfigureDiscipline(f))
}
