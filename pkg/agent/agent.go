package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/padbridge/padbridge/internal/configsvc"
	"github.com/padbridge/padbridge/internal/devsvc"
	"github.com/padbridge/padbridge/internal/method"
	"github.com/padbridge/padbridge/internal/method/evdev"
	"github.com/padbridge/padbridge/internal/method/joydev"
	"github.com/padbridge/padbridge/internal/method/rawhid"
	"github.com/padbridge/padbridge/internal/method/xusb"
	"github.com/padbridge/padbridge/internal/pollsvc"
	"github.com/padbridge/padbridge/pad"
)

type Agent struct {
	config Config

	db        *badger.DB
	configSvc *configsvc.Service
	engine    *method.Engine
	hidraw    *rawhid.Processor
	devSvc    *devsvc.Service
	pollSvc   *pollsvc.Service
}

// NewLogger builds the agent's console logger.
func NewLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func NewAgent(config Config) (*Agent, error) {
	logger, err := NewLogger()
	if err != nil {
		return nil, err
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	// TODO: run GC on db
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	a := &Agent{
		config:    config,
		db:        db,
		configSvc: configsvc.New(logger.Named("config")),
	}

	processors := make(map[pad.InputMethod]method.Processor)
	if config.MethodEnabled(pad.MethodJoydev) {
		processors[pad.MethodJoydev] = joydev.New(logger.Named("joydev"))
	}
	if config.MethodEnabled(pad.MethodXUSB) {
		processors[pad.MethodXUSB] = xusb.New(logger.Named("xusb"))
	}
	if config.MethodEnabled(pad.MethodEvdev) {
		processors[pad.MethodEvdev] = evdev.New(logger.Named("evdev"))
	}
	if config.MethodEnabled(pad.MethodHidraw) {
		a.hidraw = rawhid.New(logger.Named("hidraw"), rawhid.WithOverrides(a.mappingOverrides))
		processors[pad.MethodHidraw] = a.hidraw
	}

	// Processors consult env and overrides only after Run has started
	// the services, so the late-bound fields are settled by then.
	a.engine = method.NewEngine(logger.Named("method"), processors, a.env)
	a.devSvc = devsvc.New(db, logger.Named("dev"), a.configSvc, a.engine, config.DeviceConfig, time.Now)

	var pollOpts []pollsvc.Option
	if d := time.Duration(config.PollInterval); d > 0 {
		pollOpts = append(pollOpts, pollsvc.WithPollInterval(d))
	}
	a.pollSvc = pollsvc.New(logger.Named("poll"), a.devSvc, a.engine, pad.NewClock(), pollOpts...)
	return a, nil
}

func (a *Agent) env() method.Env {
	return method.NewEnv(a.pollSvc.ActiveCount)
}

func (a *Agent) mappingOverrides(id pad.Identity) rawhid.Overrides {
	return a.devSvc.MappingOverrides(id)
}

func (a *Agent) Close() error {
	return a.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the agent and blocks until the context is cancelled.
// Agent startup will fail if the configuration is not valid.
// In case configuration becomes invalid after the startup, it will remain running with the last valid configuration.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.devSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.pollSvc.Start(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

// Ready closes once every service has finished its startup sequence.
func (a *Agent) Ready() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		<-a.configSvc.Ready()
		<-a.devSvc.Ready()
		<-a.pollSvc.Ready()
		close(ready)
	}()
	return ready
}

func (a *Agent) Devices() *devsvc.Service {
	return a.devSvc
}

func (a *Agent) Poller() *pollsvc.Service {
	return a.pollSvc
}

// Hidraw returns the raw-HID processor, or nil when the method is
// disabled in the config.
func (a *Agent) Hidraw() *rawhid.Processor {
	return a.hidraw
}
