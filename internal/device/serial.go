package device

import (
	"bytes"
	"io"

	"github.com/tarm/serial"
)

// SerialOpener opens the controller's serial port at path (e.g. /dev/ttyACM0)
func SerialOpener(path string, baud int) Opener {
	cfg := &serial.Config{
		Name:   path,
		Baud:   baud,
		Parity: serial.ParityNone,
	}
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(cfg)
	}
}

// ScanCRLF is a bufio.SplitFunc for CR LF terminated lines. A bare LF is
// accepted as a terminator too. An unterminated tail at EOF is dropped:
// only complete lines are ever delivered.
func ScanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF && len(data) > 0 {
		return len(data), nil, nil
	}
	return 0, nil, nil
}
