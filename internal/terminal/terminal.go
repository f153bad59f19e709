package terminal

import (
	"errors"
	"fmt"
	"os"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrInvalidGeometry is returned for zero or negative dimensions.
var ErrInvalidGeometry = errors.New("invalid terminal geometry")

// Geometry is a terminal window size in character cells.
type Geometry struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Valid reports whether both dimensions are positive and fit a winsize.
func (g Geometry) Valid() bool {
	return g.Rows > 0 && g.Cols > 0 && g.Rows <= 0xffff && g.Cols <= 0xffff
}

func (g Geometry) winsize() *pty.Winsize {
	return &pty.Winsize{Rows: uint16(g.Rows), Cols: uint16(g.Cols)}
}

// Pair is an open master/slave pseudo-terminal. The slave is handed to the
// child; the master stays with the supervisor.
type Pair struct {
	Master *os.File
	Slave  *os.File
}

// Open allocates a pseudo-terminal, configures the slave's line discipline
// and applies the initial geometry. Only the allocation itself can fail;
// discipline and geometry problems are logged and the terminal keeps the OS
// defaults.
func Open(geom Geometry, logger *zap.Logger) (*Pair, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open PTY: %w", err)
	}

	if err := ConfigureDiscipline(slave); err != nil {
		logger.Warn("Terminal discipline not applied, using defaults",
			zap.String("tty", slave.Name()),
			zap.Error(err),
		)
	}

	if !geom.Valid() {
		logger.Warn("Initial geometry invalid, using defaults",
			zap.Int("rows", geom.Rows),
			zap.Int("cols", geom.Cols),
		)
	} else if err := pty.Setsize(master, geom.winsize()); err != nil {
		logger.Warn("Initial geometry not applied",
			zap.String("tty", slave.Name()),
			zap.Error(err),
		)
	}

	return &Pair{Master: master, Slave: slave}, nil
}

// Close releases both ends. Used only when a launch fails before the
// descriptors were handed to a child.
func (p *Pair) Close() error {
	return errors.Join(p.Slave.Close(), p.Master.Close())
}

// Resize applies geom to the terminal behind f.
func Resize(f *os.File, geom Geometry) error {
	if !geom.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, geom.Rows, geom.Cols)
	}
	return pty.Setsize(f, geom.winsize())
}

// Size reads the current geometry of the terminal behind f.
func Size(f *os.File) (Geometry, error) {
	rows, cols, err := pty.Getsize(f)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{Rows: rows, Cols: cols}, nil
}

// ConfigureDiscipline puts the terminal into cooked mode the way an
// interactive login shell expects it: canonical input with echo, signal
// generation, 8-bit characters, output post-processing with NL to CRNL, and
// the conventional control characters (^C, ^\, DEL, ^U, ^D, ^Z).
func ConfigureDiscipline(f *os.File) error {
	fd := int(f.Fd())

	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	t.Iflag |= unix.ICRNL | unix.IXON
	t.Iflag &^= unix.IGNCR | unix.INLCR | unix.ISTRIP

	t.Oflag |= unix.OPOST | unix.ONLCR

	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD

	t.Lflag |= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ISIG | unix.IEXTEN

	t.Cc[unix.VINTR] = 0x03  // ^C
	t.Cc[unix.VQUIT] = 0x1c  // ^\
	t.Cc[unix.VERASE] = 0x7f // DEL
	t.Cc[unix.VKILL] = 0x15  // ^U
	t.Cc[unix.VEOF] = 0x04   // ^D
	t.Cc[unix.VSUSP] = 0x1a  // ^Z
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}
