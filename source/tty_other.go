//go:build !linux

package source

import "os"

const noCTTY = 0

// configureTTY is a no-op off Linux; the device keeps its current settings.
func configureTTY(f *os.File, baud int) error {
	return nil
}
