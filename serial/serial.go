// Package serial opens the serial AT port of the modem.
package serial

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"

	"github.com/ftl/ecall/com"
)

var (
	// ErrNoModemFound is returned if no serial device looks like the AT port of a modem.
	ErrNoModemFound = errors.New("no modem AT port found")
)

// DefaultBaudRate of the modem's AT port
const DefaultBaudRate = 115200

// Open opens the given serial port and starts a COM loop on it. The returned closer closes the port.
func Open(portName string, baudRate uint, options ...com.Option) (*com.COM, io.Closer, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	device, err := openSerial(portName, baudRate)
	if err != nil {
		return nil, nil, err
	}

	return com.New(device, options...), device, nil
}

func openSerial(portName string, baudRate uint) (io.ReadWriteCloser, error) {
	portConfig := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     true,
		MinimumReadSize:       1,
		InterCharacterTimeout: 100,
	}

	return serial.Open(portConfig)
}
