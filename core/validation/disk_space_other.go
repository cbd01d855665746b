//go:build !linux && !darwin && !freebsd && !windows

package validation

func diskSpace(string) (uint64, uint64, error) {
	return 0, 0, errDiskSpaceUnsupported
}
