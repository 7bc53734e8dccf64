package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/securelock/securelock/internal/capability"
	"github.com/securelock/securelock/internal/lockscreen"
	"github.com/securelock/securelock/internal/proximity"
	"github.com/securelock/securelock/pkg/color"
	"github.com/securelock/securelock/pkg/metrics"
	"github.com/securelock/securelock/pkg/model"
)

func newSessionCmd() *cobra.Command {
	var (
		metricsAddr string
		deny        []string
	)
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run an interactive lock screen",
		Long: `Run an interactive lock screen on simulated device capabilities.

On first use the session asks for a new PIN and its confirmation. After
that every line is an unlock attempt. Too many wrong PINs lock the device
out and trigger the intrusion response.

Input, one per line:
  <PIN>          submit a PIN
  lock           lock the device again
  status         show the lock state
  light <lux>    feed an ambient light sample
  tilt <z>       feed an accelerometer sample (z axis, m/s^2)
  quit           end the session

Examples:
  securelock session
  securelock session --metrics-addr :2112
  securelock session --simulate-deny camera`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			denied, err := parseDeny(deny)
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Address
			}
			if metricsAddr != "" {
				shutdown, err := serveMetrics(metricsAddr, a.metrics)
				if err != nil {
					return err
				}
				defer shutdown()
				a.logger.Info("serving metrics", map[string]any{"address": metricsAddr})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, a, denied, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringSliceVar(&deny, "simulate-deny", nil, "refuse permission for these capabilities (camera, location)")
	return cmd
}

type session struct {
	app     *app
	ctrl    *lockscreen.Controller
	monitor *proximity.Monitor
	hub     *capability.SensorHub
	out     io.Writer
	paint   color.Painter
}

func runSession(ctx context.Context, a *app, deny denySet, in io.Reader, out io.Writer) error {
	release, err := a.holdLease(ctx, "session")
	if err != nil {
		return err
	}
	defer release()

	caps, hub := a.capabilities(deny)
	s := &session{app: a, hub: hub, out: &syncWriter{w: out}, paint: color.For(out)}
	s.ctrl = a.controller(caps, func() { s.say(s.paint.Info("Lockout ended. Enter PIN.")) })
	defer s.ctrl.Close()

	sensors := a.cfg.Sensors
	s.monitor = proximity.NewMonitor(proximity.Options{
		Sensors:        hub,
		LightThreshold: sensors.LightThreshold,
		FaceDownZ:      sensors.FaceDownZ,
		FlatZ:          sensors.FlatZ,
		Interval:       sensors.SampleInterval,
		ProbeWait:      sensors.PocketProbeWait,
		Clock:          a.clock,
		Recorder:       a.recorder,
		DeviceID:       a.device.ID,
		Logger:         a.logger,
		Metrics:        a.metrics,
	})
	s.monitor.OnChange(func(near bool) {
		if near {
			s.say(s.paint.Dim("Pocket mode: device covered"))
		} else {
			s.say(s.paint.Dim("Pocket mode: device uncovered"))
		}
	})
	defer s.monitor.Stop()

	state, err := s.ctrl.Init(ctx)
	if err != nil {
		return err
	}
	if state.IsSetup() {
		s.say("Welcome. Choose a 4-digit PIN.")
	} else {
		s.say("Device locked. Enter PIN.")
	}
	s.syncProximity(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.handle(ctx, line)
			if err != nil {
				fmtErr(s.out, "%v", err)
			}
			if quit {
				return nil
			}
			s.syncProximity(ctx)
		}
	}
}

func (s *session) say(msg string) {
	fmt.Fprintln(s.out, msg)
}

func (s *session) handle(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true, nil
	case "lock":
		if err := s.ctrl.Lock(); err != nil {
			return false, err
		}
		s.say("Device locked.")
	case "status":
		return false, s.printStatus()
	case "light":
		lux, err := floatArg(fields, "light <lux>")
		if err != nil {
			return false, err
		}
		s.hub.Emit(model.Reading{Kind: model.SensorLight, Illuminance: lux})
	case "tilt":
		z, err := floatArg(fields, "tilt <z>")
		if err != nil {
			return false, err
		}
		s.hub.Emit(model.Reading{Kind: model.SensorAccelerometer, Z: z})
	default:
		res, err := s.ctrl.Submit(ctx, fields[0])
		if err != nil {
			return false, err
		}
		return false, s.printResult(res)
	}
	return false, nil
}

func floatArg(fields []string, usage string) (float64, error) {
	if len(fields) != 2 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, fmt.Errorf("usage: %s: %w", usage, err)
	}
	return v, nil
}

func (s *session) printResult(res *lockscreen.Result) error {
	if jsonOutput {
		return outputJSON(s.out, res)
	}
	switch {
	case res.Unlocked():
		s.say(s.paint.Success(res.Message))
	case res.LockedOut:
		s.say(s.paint.Error(res.Message))
	case res.State == model.LockStateLocked:
		s.say(s.paint.Warning(res.Message))
	default:
		s.say(res.Message)
	}
	if o := res.Outcome; o != nil {
		s.say(fmt.Sprintf("Intrusion response: alarm=%s camera=%s location=%s",
			o.Alarm.Status, o.Camera.Status, o.Location.Status))
	}
	return nil
}

func (s *session) printStatus() error {
	st := s.ctrl.Status()
	if jsonOutput {
		return outputJSON(s.out, st)
	}
	msg := fmt.Sprintf("State: %s  Failed attempts: %d", st.State, st.FailedCount)
	if st.LockedOut {
		msg += fmt.Sprintf("  Locked out for %s", st.LockoutRemaining.Round(time.Second))
	}
	if s.monitor.Running() {
		msg += fmt.Sprintf("  Near: %t", s.monitor.IsNear())
	}
	s.say(msg)
	return nil
}

// syncProximity runs the proximity monitor while the device is locked and
// pocket mode is enabled.
func (s *session) syncProximity(ctx context.Context) {
	want := false
	if s.ctrl.Status().State == model.LockStateLocked {
		settings, err := s.app.db.Get(ctx, s.app.device.ID)
		if err != nil {
			s.app.logger.WarnErr("read settings for pocket mode", err)
			return
		}
		want = settings != nil && settings.ProximityModeEnabled
	}

	switch {
	case want && !s.monitor.Running():
		if err := s.monitor.Start(ctx); err != nil {
			s.app.logger.WarnErr("start proximity monitor", err)
		}
	case !want && s.monitor.Running():
		s.monitor.Stop()
	}
}

// serveMetrics exposes reg on addr/metrics until the returned function is
// called.
func serveMetrics(addr string, reg *metrics.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmtErr(os.Stderr, "metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
