//go:build linux

package source

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const noCTTY = unix.O_NOCTTY

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// configureTTY puts the device in raw 8N1 mode without flow control. Reads
// return after one byte or a one second timeout.
func configureTTY(f *os.File, baud int) error {
	speed, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	// Control keeps the descriptor in non-blocking mode, so Close still
	// interrupts a pending Read.
	if err := conn.Control(func(fd uintptr) {
		setErr = setRaw(int(fd), speed)
	}); err != nil {
		return err
	}
	return setErr
}

func setRaw(fd int, speed uint32) error {
	tty, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		// Not a terminal, e.g. a FIFO used for replay.
		if err == unix.ENOTTY || err == unix.EINVAL {
			return nil
		}
		return fmt.Errorf("get attributes: %w", err)
	}

	tty.Cflag &^= unix.CBAUD | unix.PARENB | unix.CSTOPB | unix.CSIZE | unix.CRTSCTS
	tty.Cflag |= speed | unix.CS8 | unix.CREAD | unix.CLOCAL
	tty.Ispeed = speed
	tty.Ospeed = speed
	tty.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY | unix.INLCR | unix.ICRNL
	tty.Oflag &^= unix.OPOST
	tty.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ISIG
	tty.Cc[unix.VMIN] = 1
	tty.Cc[unix.VTIME] = 10

	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tty); err != nil {
		return fmt.Errorf("set attributes: %w", err)
	}
	return nil
}
