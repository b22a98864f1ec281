// Package com provides a line based AT command channel to a modem, with dispatching of
// unsolicited result codes (URC).
package com

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	readBufferSize        = 1024
	atSendingQueueTimeout = 500 * time.Millisecond
	syncRetryDelay        = 200 * time.Millisecond
)

var (
	// ErrCommand is returned (wrapped) when the modem answers a command with ERROR, +CME ERROR, or +CMS ERROR.
	ErrCommand = errors.New("AT command failed")
	// ErrQueueTimeout is returned when a command cannot be queued because the previous one is still pending.
	ErrQueueTimeout = errors.New("AT sending queue timeout")
)

// Option configures a COM instance.
type Option func(*COM)

// WithTrace traces all communication to the given writer.
func WithTrace(tracer io.Writer) Option {
	return func(c *COM) {
		c.tracer = tracer
	}
}

// WithLogger sets the logger used for diagnostics of the COM loop.
func WithLogger(log *logrus.Entry) Option {
	return func(c *COM) {
		c.log = log
	}
}

// New creates a new COM instance using the given io.ReadWriter to communicate with the modem.
func New(device io.ReadWriter, options ...Option) *COM {
	lines := readLoop(device)
	commands := make(chan command)
	result := &COM{
		commands: commands,
		closed:   make(chan struct{}),
		urcs:     make(map[string]urcConfig),
		log:      logrus.WithField("component", "com"),
	}
	for _, option := range options {
		option(result)
	}

	go func() {
		result.trace("****\n* SESSION START\n****\n")
		defer result.trace("****\n* SESSION END\n****\n")
		defer close(result.closed)

		var commandCancelled <-chan struct{}
		var activeCommand *command
		var activeURC *urc
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()

		for {
			select {
			case line, valid := <-lines:
				if !valid {
					result.log.Debug("device closed")
					return
				}
				result.tracef("rx:  %s\nhex: %X\n--\n", line, line)

				switch {
				case activeURC != nil:
					activeURC.AddLine(line)
					if activeURC.Complete() {
						activeURC = nil
					}
				case activeCommand != nil:
					activeURC = result.newURC(line)
					if activeURC != nil {
						if activeURC.Complete() {
							activeURC = nil
						}
						break
					}
					activeCommand.AddLine(line)
					if activeCommand.Complete() {
						commandCancelled = nil
						activeCommand = nil
					}
				default:
					activeURC = result.newURC(line)
					if activeURC == nil {
						result.log.WithField("line", line).Debug("dropping unexpected line")
					} else if activeURC.Complete() {
						activeURC = nil
					}
				}
			case <-commandCancelled:
				commandCancelled = nil
				activeCommand = nil
			case <-tick.C:
			}
			if activeCommand == nil {
				select {
				case cmd := <-commands:
					if len(cmd.request) == 0 {
						break
					}

					txbytes := make([]byte, 0, len(cmd.request)+2)
					txbytes = append(txbytes, []byte(cmd.request)...)
					lastbyte := txbytes[len(txbytes)-1]
					if (lastbyte != 0x1a) && (lastbyte != 0x1b) {
						txbytes = append(txbytes, 0x0d, 0x0a)
					}
					result.tracef("tx:  %s\nhex: %X\n--\n", txbytes, txbytes)
					if _, err := device.Write(txbytes); err != nil {
						result.log.WithError(err).WithField("request", cmd.request).Error("cannot write command")
					}
					commandCancelled = cmd.cancelled
					activeCommand = &cmd
				default:
				}
			}
		}
	}()

	return result
}

// COM allows to communicate with a modem using AT commands.
type COM struct {
	commands chan<- command
	closed   chan struct{}
	tracer   io.Writer
	log      *logrus.Entry

	urcLock sync.RWMutex
	urcs    map[string]urcConfig
}

func readLoop(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		buf := make([]byte, readBufferSize)
		currentLine := make([]byte, 0, readBufferSize)
		for {
			n, err := r.Read(buf)
			if err != nil {
				if len(currentLine) > 0 {
					lines <- string(currentLine)
				}
				close(lines)
				return
			}

			for _, b := range buf[0:n] {
				switch {
				case b == '\n':
					if len(currentLine) == 0 {
						continue
					}
					lines <- string(currentLine)
					currentLine = currentLine[:0]
				case b < ' ':
					continue
				default:
					currentLine = append(currentLine, b)
				}
			}
		}
	}()
	return lines
}

// Closed reports whether the device was closed and the COM loop has ended.
func (c *COM) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// AddURC registers a handler for unsolicited result codes starting with the given prefix (case insensitive).
// The URC consists of the matching line and the given number of trailing lines.
// Handlers are called on the COM loop in the order the URCs arrive. They must not block and must not
// send AT commands.
func (c *COM) AddURC(prefix string, trailingLines int, handler func(lines []string)) {
	config := urcConfig{
		prefix:        strings.ToUpper(prefix),
		trailingLines: trailingLines,
		handler:       handler,
	}
	c.urcLock.Lock()
	defer c.urcLock.Unlock()
	c.urcs[config.prefix] = config
}

func (c *COM) newURC(line string) *urc {
	c.urcLock.RLock()
	defer c.urcLock.RUnlock()
	for _, config := range c.urcs {
		result := config.NewIfMatches(line)
		if result != nil {
			return result
		}
	}
	return nil
}

// Sync sends plain AT commands until the modem answers with OK. It gives up after the given number of attempts.
func (c *COM) Sync(ctx context.Context, attempts int) error {
	var err error
	for i := 0; i < attempts; i++ {
		_, err = c.AT(ctx, "AT")
		if err == nil {
			return nil
		}
		c.log.WithError(err).WithField("attempt", i+1).Debug("modem not in sync")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(syncRetryDelay):
		}
	}
	return fmt.Errorf("cannot sync with modem: %w", err)
}

// AT sends the given request and waits for the final result code. It returns the intermediate response lines.
func (c *COM) AT(ctx context.Context, request string) ([]string, error) {
	cmd := command{
		request:   request,
		response:  make(chan []string, 1),
		err:       make(chan error, 1),
		cancelled: ctx.Done(),
		completed: make(chan struct{}),
	}

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.ErrClosedPipe
	case <-time.After(atSendingQueueTimeout):
		return nil, ErrQueueTimeout
	}

	select {
	case response := <-cmd.response:
		return response, nil
	case err := <-cmd.err:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ATs sends the given requests one after the other and stops at the first failure.
func (c *COM) ATs(ctx context.Context, requests ...string) error {
	for _, request := range requests {
		_, err := c.AT(ctx, request)
		if err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	return nil
}

func (c *COM) trace(args ...interface{}) {
	if c.tracer == nil {
		return
	}
	fmt.Fprint(c.tracer, args...)
}

func (c *COM) tracef(format string, args ...interface{}) {
	if c.tracer == nil {
		return
	}
	fmt.Fprintf(c.tracer, format, args...)
}

type urcConfig struct {
	prefix        string
	trailingLines int
	handler       func(lines []string)
}

// NewIfMatches returns the URC started by the given line, or nil if the line does not match.
// A URC without trailing lines is returned completed, its handler was already called.
func (c *urcConfig) NewIfMatches(line string) *urc {
	if !strings.HasPrefix(strings.ToUpper(line), c.prefix) {
		return nil
	}
	result := &urc{
		config: *c,
		lines:  []string{line},
	}
	if result.Complete() {
		c.handler(result.lines)
	}
	return result
}

type urc struct {
	config urcConfig
	lines  []string
}

func (u *urc) AddLine(line string) {
	if u.Complete() {
		return
	}

	u.lines = append(u.lines, line)
	if u.Complete() {
		u.config.handler(u.lines)
	}
}

func (u *urc) Complete() bool {
	return len(u.lines) >= u.config.trailingLines+1
}

type command struct {
	lines     []string
	request   string
	response  chan []string
	err       chan error
	cancelled <-chan struct{}
	completed chan struct{}
}

func (c *command) AddLine(line string) {
	select {
	case <-c.cancelled:
		return
	case <-c.completed:
		return
	default:
	}

	saniLine := strings.TrimSpace(strings.ToUpper(line))
	switch {
	case saniLine == "OK":
		c.response <- c.lines
		close(c.completed)
	case strings.HasPrefix(saniLine, "ERROR"),
		strings.HasPrefix(saniLine, "+CME ERROR"),
		strings.HasPrefix(saniLine, "+CMS ERROR"),
		saniLine == "NO CARRIER":
		c.err <- fmt.Errorf("%w: %s", ErrCommand, line)
		close(c.completed)
	default:
		c.lines = append(c.lines, line)
	}
}

func (c *command) Complete() bool {
	select {
	case <-c.cancelled:
		return true
	case <-c.completed:
		return true
	default:
		return false
	}
}
