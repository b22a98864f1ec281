//go:build linux

package serial

import (
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// modemKeywords identify the AT port among the serial devices of a modem.
var modemKeywords = []string{"ecall", "at port", "modem"}

// FindModemPortName returns the path of the first serial device whose description looks like a modem AT port.
func FindModemPortName() (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	for _, device := range devices {
		if isModemPort(device.Description()) {
			return device.Path(), nil
		}
	}

	return "", ErrNoModemFound
}

func isModemPort(description string) bool {
	description = strings.ToLower(description)
	for _, keyword := range modemKeywords {
		if strings.Contains(description, keyword) {
			return true
		}
	}
	return false
}
