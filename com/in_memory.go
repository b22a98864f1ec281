package com

import (
	"io"
	"strings"
	"sync"
	"time"
)

// NewInMemory returns an in-memory device for testing.
func NewInMemory() *InMemory {
	return &InMemory{
		readBuffer:  []byte{},
		writeBuffer: []byte{},
		readLock:    new(sync.RWMutex),
		writeLock:   new(sync.RWMutex),
		writeSignal: make(chan bool),
		closed:      make(chan struct{}),
	}
}

// InMemory is an io.ReadWriter that plays the role of the modem: the test prepares what the modem
// sends and inspects what was written to it. With a Responder, it answers every written line on its own.
type InMemory struct {
	readBuffer     []byte
	writeBuffer    []byte
	readLock       *sync.RWMutex
	writeLock      *sync.RWMutex
	writeSignal    chan bool
	closed         chan struct{}
	closeWhenEmpty bool
	responder      Responder
}

// Responder returns the modem's answer to a single written line, including line endings.
type Responder func(request string) string

// OKResponder answers every request with OK.
func OKResponder(string) string {
	return "OK\r\n"
}

func (rw *InMemory) Close() error {
	select {
	case <-rw.closed:
	default:
		close(rw.closed)
	}
	return nil
}

func (rw *InMemory) WaitUntilClosed() {
	<-rw.closed
}

func (rw *InMemory) Read(p []byte) (int, error) {
	for {
		rw.readLock.RLock()
		if len(rw.readBuffer) > 0 {
			rw.readLock.RUnlock()
			break
		}
		rw.readLock.RUnlock()
		select {
		case <-rw.closed:
			return 0, io.EOF
		case <-time.After(10 * time.Millisecond):
			continue
		}
	}

	select {
	case <-rw.closed:
		return 0, io.EOF
	default:
	}

	rw.readLock.Lock()
	defer rw.readLock.Unlock()
	n := copy(p, rw.readBuffer)
	rw.readBuffer = rw.readBuffer[n:]
	if rw.closeWhenEmpty && len(rw.readBuffer) == 0 {
		rw.Close()
	}
	return n, nil
}

// PrepareRead appends the given bytes to what the device delivers on Read.
func (rw *InMemory) PrepareRead(p []byte) {
	rw.readLock.Lock()
	defer rw.readLock.Unlock()

	rw.readBuffer = append(rw.readBuffer, p...)
}

func (rw *InMemory) IsReadEmpty() bool {
	rw.readLock.RLock()
	defer rw.readLock.RUnlock()

	return len(rw.readBuffer) == 0
}

// CloseWhenEmpty closes the device as soon as all prepared bytes were read.
func (rw *InMemory) CloseWhenEmpty(value bool) {
	rw.readLock.Lock()
	defer rw.readLock.Unlock()

	rw.closeWhenEmpty = value
}

// SetResponder installs a function that answers written lines.
func (rw *InMemory) SetResponder(responder Responder) {
	rw.writeLock.Lock()
	defer rw.writeLock.Unlock()

	rw.responder = responder
}

func (rw *InMemory) Write(p []byte) (int, error) {
	rw.writeLock.Lock()
	rw.writeBuffer = append(rw.writeBuffer, p...)
	responder := rw.responder
	rw.writeLock.Unlock()

	if responder != nil {
		request := strings.TrimRight(string(p), "\r\n")
		rw.PrepareRead([]byte(responder(request)))
	}

	select {
	case rw.writeSignal <- true:
	default:
	}
	return len(p), nil
}

func (rw *InMemory) Written() []byte {
	rw.writeLock.RLock()
	defer rw.writeLock.RUnlock()

	return rw.writeBuffer
}

// WrittenLines returns all written lines without their line endings.
func (rw *InMemory) WrittenLines() []string {
	written := strings.TrimRight(string(rw.Written()), "\r\n")
	if written == "" {
		return nil
	}
	return strings.Split(written, "\r\n")
}

func (rw *InMemory) ClearWrite() {
	rw.writeLock.Lock()
	defer rw.writeLock.Unlock()

	rw.writeBuffer = []byte{}
}

func (rw *InMemory) WaitUntilWritten() {
	<-rw.writeSignal
}
