// Package config reads the configuration file of the eCall daemon and keeps it up to date.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ftl/ecall/ecall"
)

// Config is the content of the configuration file.
type Config struct {
	Vehicle Vehicle `yaml:"vehicle"`
	System  System  `yaml:"system"`
	Redial  Redial  `yaml:"redial"`
	Modem   Modem   `yaml:"modem"`
	Log     Log     `yaml:"log"`
}

// Vehicle describes the vehicle in the MSD.
type Vehicle struct {
	VIN        string   `yaml:"vin"`
	Type       string   `yaml:"type"`
	Propulsion []string `yaml:"propulsion"`
	MsdVersion int      `yaml:"msdVersion"`
}

// System selects the eCall standard and the PSAP.
type System struct {
	Standard   string `yaml:"standard"`
	PsapNumber string `yaml:"psapNumber"`
	MsdTxMode  string `yaml:"msdTxMode"`
}

// Redial configures the redial policies.
type Redial struct {
	Interval                 time.Duration `yaml:"interval"`
	EraGlonassManualAttempts uint16        `yaml:"eraGlonassManualAttempts"`
	EraGlonassAutoAttempts   uint16        `yaml:"eraGlonassAutoAttempts"`
	EraGlonassDialDuration   time.Duration `yaml:"eraGlonassDialDuration"`
}

// Modem selects the AT port of the modem or the simulation.
type Modem struct {
	Port     string        `yaml:"port"`
	BaudRate uint          `yaml:"baudRate"`
	Trace    bool          `yaml:"trace"`
	Simulate bool          `yaml:"simulate"`
	Scenario string        `yaml:"scenario"`
	Step     time.Duration `yaml:"step"`
}

// Log configures the logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Metrics is the interval in which the metrics are logged, 0 disables the metrics log.
	Metrics time.Duration `yaml:"metrics"`
}

// Default returns the configuration that is used for everything the file does not set.
func Default() Config {
	return Config{
		Vehicle: Vehicle{
			Type:       "Passenger-M1",
			MsdVersion: 1,
		},
		System: System{
			Standard:  "PAN-EUROPEAN",
			MsdTxMode: "push",
		},
		Redial: Redial{
			Interval:                 ecall.DefaultIntervalBetweenAttempts,
			EraGlonassManualAttempts: ecall.DefaultEraGlonassDialAttempts,
			EraGlonassAutoAttempts:   ecall.DefaultEraGlonassDialAttempts,
			EraGlonassDialDuration:   ecall.DefaultEraGlonassDialDuration,
		},
		Modem: Modem{
			Scenario: "success",
			Step:     500 * time.Millisecond,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Parse reads the configuration from the given YAML data, on top of the defaults.
func Parse(data []byte) (Config, error) {
	result := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(&result)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("cannot parse the configuration: %w", err)
	}
	return result, nil
}

// Settings returns the vehicle and system settings of the eCall service.
func (c Config) Settings() ecall.Settings {
	return ecall.Settings{
		VIN:             c.Vehicle.VIN,
		VehicleType:     c.Vehicle.Type,
		MsdVersion:      c.Vehicle.MsdVersion,
		SystemStandard:  c.System.Standard,
		PropulsionTypes: c.Vehicle.Propulsion,
	}
}

// TxMode returns the configured MSD transmission mode.
func (c Config) TxMode() (ecall.MsdTxMode, error) {
	switch c.System.MsdTxMode {
	case "push", "":
		return ecall.TxModePush, nil
	case "pull":
		return ecall.TxModePull, nil
	default:
		return ecall.TxModePush, fmt.Errorf("invalid MSD transmission mode %s", c.System.MsdTxMode)
	}
}

// Store holds the current configuration and reloads it from the file on request.
type Store struct {
	path string
	log  *logrus.Entry

	lock     sync.RWMutex
	current  Config
	modTime  time.Time
	handlers []func(Config)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger of the store.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Load reads the configuration file with the given path.
func Load(path string, options ...Option) (*Store, error) {
	result := &Store{
		path: path,
		log:  logrus.WithField("component", "config"),
	}
	for _, option := range options {
		option(result)
	}

	config, modTime, err := result.read()
	if err != nil {
		return nil, err
	}
	result.current = config
	result.modTime = modTime
	return result, nil
}

// Path of the configuration file
func (s *Store) Path() string {
	return s.path
}

// Config returns the current configuration.
func (s *Store) Config() Config {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.current
}

// OnChange registers a handler that is called with the new configuration after every successful reload.
func (s *Store) OnChange(handler func(Config)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Reload reads the configuration file again. If the file cannot be read or parsed, the current
// configuration is kept.
func (s *Store) Reload() error {
	config, modTime, err := s.read()
	if err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("cannot reload the configuration")
		return err
	}

	s.lock.Lock()
	s.current = config
	s.modTime = modTime
	handlers := append([]func(Config){}, s.handlers...)
	s.lock.Unlock()

	s.log.WithField("path", s.path).Info("configuration reloaded")
	for _, handler := range handlers {
		handler(config)
	}
	return nil
}

// Watch polls the modification time of the configuration file in the given interval and reloads
// the file when it changed. It returns when the context is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.lock.RLock()
	lastSeen := s.modTime
	s.lock.RUnlock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := os.Stat(s.path)
		if err != nil {
			s.log.WithError(err).WithField("path", s.path).Debug("cannot stat the configuration file")
			continue
		}
		if info.ModTime().Equal(lastSeen) {
			continue
		}
		lastSeen = info.ModTime()
		s.Reload()
	}
}

func (s *Store) read() (Config, time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return Config{}, time.Time{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Config{}, time.Time{}, err
	}
	config, err := Parse(data)
	if err != nil {
		return Config{}, time.Time{}, err
	}
	return config, info.ModTime(), nil
}
