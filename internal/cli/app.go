package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/securelock/securelock/internal/audit"
	"github.com/securelock/securelock/internal/capability"
	"github.com/securelock/securelock/internal/device"
	"github.com/securelock/securelock/internal/intrusion"
	"github.com/securelock/securelock/internal/lease"
	"github.com/securelock/securelock/internal/lockscreen"
	"github.com/securelock/securelock/internal/store"
	"github.com/securelock/securelock/pkg/config"
	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/metrics"
	"github.com/securelock/securelock/pkg/webhook"
)

// app is one opened data directory with everything wired to it.
type app struct {
	dataDir  string
	cfg      *config.Config
	logger   *logging.Logger
	clock    clockwork.Clock
	device   *device.Device
	db       *store.SQLite
	journal  *audit.FileAppender
	hooks    *webhook.Client
	metrics  *metrics.Registry
	recorder *store.Recorder
	leases   *lease.Manager
}

// openApp loads configuration, opens the device identity, the database,
// the audit journal and the webhook client.
func openApp() (*app, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	dev, err := device.Open(dataDir, device.ProbeHost, clock.Now())
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open device: %w", err)
	}

	db, err := store.OpenSQLite(config.Resolve(dataDir, cfg.DatabasePath))
	if err != nil {
		logger.Close()
		return nil, err
	}

	a := &app{
		dataDir: dataDir,
		cfg:     cfg,
		logger:  logger.WithFields(map[string]any{"device_id": dev.ID}),
		clock:   clock,
		device:  dev,
		db:      db,
		journal: audit.NewFileAppender(config.Resolve(dataDir, cfg.AuditLogPath)),
		metrics: metrics.NewRegistry(),
		leases:  lease.NewManager(dataDir, lease.DefaultTTL, clock),
	}
	a.hooks = webhook.NewClient(&cfg.Webhook, a.logger)

	sinks := []store.Sink{
		{Name: "sqlite", Journal: a.db},
		{Name: "audit", Journal: a.journal},
	}
	if len(cfg.Webhook.Hooks) > 0 {
		sinks = append(sinks, store.Sink{Name: "webhook", Journal: a.hooks})
	}
	a.recorder = store.NewRecorder(clock, a.logger, a.metrics, sinks...)
	return a, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	levelName := cfg.Logging.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.File == "" {
		return logging.NewLogger(level), nil
	}
	return logging.NewFileLogger(level, logging.FileOptions{
		Path:       config.Resolve(dataDir, cfg.Logging.File),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}), nil
}

// Close flushes pending notifications and releases the database.
func (a *app) Close() {
	if err := a.hooks.Close(); err != nil {
		a.logger.WarnErr("close webhook client", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.WarnErr("close database", err)
	}
	_ = a.logger.Sync()
	_ = a.logger.Close()
}

// denySet names capabilities whose permission prompt is refused.
type denySet map[string]bool

func parseDeny(names []string) (denySet, error) {
	deny := make(denySet)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		switch n {
		case "":
		case "camera", "location":
			deny[n] = true
		default:
			return nil, fmt.Errorf("unknown capability %q (want camera or location)", n)
		}
	}
	return deny, nil
}

// capabilities returns the simulated device providers plus the sensor hub
// that feeds them.
func (a *app) capabilities(deny denySet) (capability.Set, *capability.SensorHub) {
	hub := capability.NewSensorHub()
	return capability.Set{
		Alarm:    capability.NewSimulatedAlarm(a.logger),
		Camera:   &capability.SimulatedCamera{MediaDir: config.Resolve(a.dataDir, a.cfg.MediaDir), Deny: deny["camera"]},
		Locator:  &capability.SimulatedLocator{Deny: deny["location"]},
		Geocoder: capability.StaticGeocoder{Country: "Unknown"},
		Sensors:  hub,
	}, hub
}

// controller wires a lock controller to caps.
func (a *app) controller(caps capability.Set, onExpired func()) *lockscreen.Controller {
	responder := intrusion.NewResponder(intrusion.Options{
		Capabilities: caps,
		Recorder:     a.recorder,
		DeviceID:     a.device.ID,
		DeviceInfo:   a.device.Info,
		Clock:        a.clock,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
	return lockscreen.New(lockscreen.Deps{
		DeviceID:         a.device.ID,
		Settings:         a.db,
		Recorder:         a.recorder,
		Responder:        responder,
		Alarm:            caps.Alarm,
		Clock:            a.clock,
		Logger:           a.logger,
		Metrics:          a.metrics,
		OnLockoutExpired: onExpired,
	})
}

// holdLease takes the session lease and keeps renewing it until the
// returned release function is called.
func (a *app) holdLease(ctx context.Context, purpose string) (func(), error) {
	rec, err := a.leases.Acquire(purpose)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.leases.Keep(ctx, rec.HolderNonce); err != nil {
			a.logger.WarnErr("session lease lost", err)
		}
	}()

	return func() {
		cancel()
		<-done
		if err := a.leases.Release(rec.HolderNonce); err != nil {
			a.logger.WarnErr("release session lease", err)
		}
	}, nil
}

// unlock takes the session lease, opens a controller and authenticates
// with pin. The caller must call the returned close function.
func (a *app) unlock(ctx context.Context, pin, purpose string) (*lockscreen.Controller, func(), error) {
	if pin == "" {
		return nil, nil, fmt.Errorf("--pin is required")
	}
	release, err := a.holdLease(ctx, purpose)
	if err != nil {
		return nil, nil, err
	}
	caps, _ := a.capabilities(nil)
	ctrl := a.controller(caps, nil)
	closeAll := func() {
		ctrl.Close()
		release()
	}

	state, err := ctrl.Init(ctx)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if state.IsSetup() {
		closeAll()
		return nil, nil, fmt.Errorf("device has no PIN yet; run 'securelock session' to set one")
	}

	res, err := ctrl.Submit(ctx, pin)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if !res.Unlocked() {
		closeAll()
		return nil, nil, fmt.Errorf("authentication failed: %s", res.Message)
	}
	return ctrl, closeAll, nil
}

// syncWriter serializes writes from the input loop and timer callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
