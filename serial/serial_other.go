//go:build !linux

package serial

// FindModemPortName is only supported on linux.
func FindModemPortName() (string, error) {
	return "", ErrNoModemFound
}
