// ecalld runs an eCall session on a modem, or on the simulated modem, using the settings of a YAML
// configuration file. The configuration is reloaded on SIGHUP and when the file changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/ftl/ecall/at"
	"github.com/ftl/ecall/com"
	"github.com/ftl/ecall/config"
	"github.com/ftl/ecall/ecall"
	"github.com/ftl/ecall/serial"
	"github.com/ftl/ecall/sim"
)

const (
	syncAttempts    = 5
	watchInterval   = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

type modem interface {
	ecall.Platform
	ecall.CallControl
}

func main() {
	configPath := flag.String("config", "ecall.yaml", "path of the configuration file")
	start := flag.String("start", "", "start an eCall right away: manual, automatic, or test")
	flag.Parse()

	logger := logrus.New()
	log := logrus.NewEntry(logger).WithField("component", "ecalld")

	store, err := config.Load(*configPath, config.WithLogger(log.WithField("component", "config")))
	if err != nil {
		log.WithError(err).Fatal("cannot load the configuration")
	}
	cfg := store.Config()
	err = setupLogger(logger, cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("invalid log configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	device, closeDevice, err := openModem(ctx, logger, cfg.Modem)
	if err != nil {
		log.WithError(err).Fatal("cannot open the modem")
	}
	defer closeDevice()

	service, err := ecall.New(ctx, device,
		ecall.WithCallControl(device),
		ecall.WithLogger(log.WithField("component", "ecall")),
	)
	if err != nil {
		log.WithError(err).Fatal("cannot create the eCall service")
	}
	ref := service.Create()
	service.AddStateChangeHandler(func(ref ecall.Ref, state ecall.State) {
		log.WithField("ref", ref).WithField("state", state).Info("eCall state changed")
	})

	apply := func(cfg config.Config) {
		err := applyConfig(ctx, service, ref, cfg)
		if err != nil {
			log.WithError(err).Warn("configuration applied partially")
		}
	}
	apply(cfg)
	store.OnChange(apply)
	go store.Watch(ctx, watchInterval)

	if cfg.Log.Metrics > 0 {
		go metrics.Log(metrics.DefaultRegistry, cfg.Log.Metrics, log.WithField("component", "metrics"))
	}

	if *start != "" {
		err = startECall(ctx, service, ref, *start)
		if err != nil {
			log.WithError(err).Error("cannot start the eCall")
		}
	}

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	for {
		select {
		case <-hangup:
			store.Reload()
		case <-ctx.Done():
			log.Info("shutting down")
			shutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			endActiveECall(shutdown, service, ref, log)
			cancelShutdown()
			return
		}
	}
}

func setupLogger(logger *logrus.Logger, cfg config.Log) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %s", cfg.Format)
	}
	return nil
}

func openModem(ctx context.Context, logger *logrus.Logger, cfg config.Modem) (modem, func(), error) {
	log := logrus.NewEntry(logger)
	if cfg.Simulate {
		scenario, err := sim.ScenarioByName(cfg.Scenario)
		if err != nil {
			return nil, nil, err
		}
		result := sim.New(
			sim.WithLogger(log.WithField("component", "sim")),
			sim.WithScenario(scenario),
			sim.WithStepDelay(cfg.Step),
		)
		return result, result.Close, nil
	}

	portName := cfg.Port
	if portName == "" {
		var err error
		portName, err = serial.FindModemPortName()
		if err != nil {
			return nil, nil, err
		}
	}
	options := []com.Option{com.WithLogger(log.WithField("component", "com"))}
	var tracer *io.PipeWriter
	if cfg.Trace {
		tracer = logger.WriterLevel(logrus.TraceLevel)
		options = append(options, com.WithTrace(tracer))
	}
	device, port, err := serial.Open(portName, cfg.BaudRate, options...)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", portName, err)
	}
	err = device.Sync(ctx, syncAttempts)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("modem at %s does not respond: %w", portName, err)
	}
	log.WithField("port", portName).Info("modem connected")

	adapter := at.NewAdapter(device, at.WithLogger(log.WithField("component", "at")))
	return adapter, func() {
		adapter.Close()
		port.Close()
		if tracer != nil {
			tracer.Close()
		}
	}, nil
}

func applyConfig(ctx context.Context, service *ecall.Service, ref ecall.Ref, cfg config.Config) error {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	keep(service.ApplySettings(ctx, ref, cfg.Settings()))
	keep(service.SetIntervalBetweenDialAttempts(cfg.Redial.Interval))
	keep(service.SetEraGlonassManualDialAttempts(cfg.Redial.EraGlonassManualAttempts))
	keep(service.SetEraGlonassAutoDialAttempts(cfg.Redial.EraGlonassAutoAttempts))
	keep(service.SetEraGlonassDialDuration(cfg.Redial.EraGlonassDialDuration))
	if cfg.System.PsapNumber != "" {
		keep(service.SetPsapNumber(ctx, cfg.System.PsapNumber))
	} else {
		keep(service.UseUSimNumbers(ctx))
	}
	txMode, err := cfg.TxMode()
	if err == nil {
		err = service.SetMsdTxMode(ctx, txMode)
	}
	keep(err)

	return errors.Join(errs...)
}

func endActiveECall(ctx context.Context, service *ecall.Service, ref ecall.Ref, log *logrus.Entry) {
	started, err := service.IsStarted(ref)
	if err != nil || !started {
		return
	}
	err = service.End(ctx, ref)
	if err != nil {
		log.WithError(err).Error("cannot end the eCall")
		return
	}
	log.Info("eCall ended")
}

func startECall(ctx context.Context, service *ecall.Service, ref ecall.Ref, kind string) error {
	switch kind {
	case "manual":
		return service.StartManual(ctx, ref)
	case "automatic":
		return service.StartAutomatic(ctx, ref)
	case "test":
		return service.StartTest(ctx, ref)
	default:
		return fmt.Errorf("unknown start type %s", kind)
	}
}
