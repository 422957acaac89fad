package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/adapter/mavlink"
	"github.com/radio-control/rcpilot/internal/adapter/sitl"
	"github.com/radio-control/rcpilot/internal/althold"
	"github.com/radio-control/rcpilot/internal/api"
	"github.com/radio-control/rcpilot/internal/audit"
	"github.com/radio-control/rcpilot/internal/auth"
	"github.com/radio-control/rcpilot/internal/command"
	"github.com/radio-control/rcpilot/internal/config"
	"github.com/radio-control/rcpilot/internal/console"
	"github.com/radio-control/rcpilot/internal/logging"
	"github.com/radio-control/rcpilot/internal/override"
	"github.com/radio-control/rcpilot/internal/speech"
	"github.com/radio-control/rcpilot/internal/stick"
	"github.com/radio-control/rcpilot/internal/telemetry"
)

func runCommand(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}
	if kind := c.String("link"); kind != "" {
		cfg.Link.Kind = kind
	}
	if addr := c.String("api"); addr != "" {
		cfg.API.Addr = addr
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if c.Bool("no-console") {
		in = nil
	}
	return run(ctx, cfg, in, os.Stdout)
}

// run wires every component and blocks until ctx is cancelled, the operator
// quits, or a component fails. A nil in runs without a console.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	log := logger.Logger

	auditLogger, err := audit.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	hub := telemetry.NewHub(cfg.Timing)
	defer hub.Stop()

	link, err := openLink(cfg, log)
	if err != nil {
		return err
	}
	defer link.Close()
	log.Info("vehicle link open", slog.String("kind", cfg.Link.Kind), slog.String("vehicle", cfg.Vehicle.Type))

	tx := override.NewTransmitter(link, override.Options{
		Period:            cfg.OverridePeriod(),
		Resends:           cfg.Timing.Resends,
		ResendWhileActive: cfg.Timing.ResendWhileActive,
		OnTransmit: func(frame override.Frame, err error) {
			data := map[string]interface{}{"frame": frame}
			if err != nil {
				data["error"] = err.Error()
				data["code"] = adapter.Code(err)
			}
			_ = hub.Publish(telemetry.Event{Type: telemetry.EventOverride, Data: data})
		},
		Logger: log,
	})

	d := command.NewDispatcher(tx, link, command.Options{
		Envelope: cfg.Envelope,
		Axes:     cfg.Axes,
		Vehicle:  cfg.Vehicle.Type,
		Timing:   cfg.Timing,
		Debug:    cfg.Debug,
		Audit:    auditLogger,
		Hub:      hub,
		Logger:   log,
	})
	hub.SetSnapshot(d.Snapshot)

	con := console.New(d, in, out, console.Options{
		Prompt: prompt(in),
		Logger: log,
	})

	notifier := speech.New(speech.Options{
		Console: con.Writer(),
		Backend: speech.SpdSay{Command: cfg.Speech.Command},
		Enabled: cfg.Speech.Enabled,
		Timeout: cfg.Speech.Timeout,
		OnSay: func(text string, priority speech.Priority, spoken bool) {
			_ = hub.Publish(telemetry.Event{Type: telemetry.EventSpeech, Data: map[string]interface{}{
				"text":     text,
				"priority": string(priority),
				"spoken":   spoken,
			}})
		},
		Logger: log,
	})
	defer notifier.Close()
	d.SetSpeaker(notifier)

	source, _ := link.(adapter.AltitudeSource)
	hold := althold.New(source, func(ctx context.Context, percent int) error {
		return d.SetAxis(audit.WithSource(ctx, "althold"), stick.Throttle, percent)
	}, cfg.AltHold, log)
	hold.OnCorrection(func(target, altitude float64, percent int) {
		_ = hub.Publish(telemetry.Event{Type: telemetry.EventAltHold, Data: map[string]interface{}{
			"active":   true,
			"target":   target,
			"altitude": altitude,
			"throttle": percent,
		}})
	})
	d.SetAltitudeHold(hold)

	var server *api.Server
	if cfg.API.Addr != "" && cfg.API.Addr != "off" {
		authMiddleware, err := auth.FromConfig(cfg.API.Auth)
		if err != nil {
			return fmt.Errorf("failed to configure auth: %w", err)
		}
		server = api.NewServer(d, hub, authMiddleware, cfg.API, log)
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error { return tx.Run(gctx) })
	g.Go(func() error { return hold.Run(gctx) })

	if in != nil {
		g.Go(func() error {
			defer cancel()
			return con.Run(gctx)
		})
	}

	if server != nil {
		g.Go(func() error { return server.Start(cfg.API.Addr) })
		g.Go(func() error {
			<-gctx.Done()
			return server.Stop(context.Background())
		})
	}

	notifier.Say("Pilot input ready", speech.Message)
	log.Info("rcpilot started",
		slog.String("version", Version),
		slog.Duration("period", tx.Period()),
		slog.String("api", cfg.API.Addr))

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("rcpilot stopped with error", slog.String("error", err.Error()))
		return err
	}
	log.Info("rcpilot stopped")
	return nil
}

func openLink(cfg *config.Config, log *slog.Logger) (adapter.VehicleLink, error) {
	switch cfg.Link.Kind {
	case config.LinkSITL:
		link, err := sitl.Dial(cfg.Link.SITLAddress, sitl.Options{
			QueueSize:    cfg.Link.QueueSize,
			WriteTimeout: cfg.Timing.WriteTimeout,
			Logger:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open SITL link: %w", err)
		}
		return link, nil

	case config.LinkMAVLink:
		kind, addr, err := config.SplitEndpoint(cfg.Link.Endpoint)
		if err != nil {
			return nil, err
		}
		link, err := mavlink.Dial(mavlink.Options{
			EndpointKind:    kind,
			EndpointAddress: addr,
			SystemID:        cfg.Link.SystemID,
			TargetSystem:    cfg.Link.TargetSystem,
			TargetComponent: cfg.Link.TargetComponent,
			Vehicle:         cfg.Vehicle.Type,
			QueueSize:       cfg.Link.QueueSize,
			ParamTimeout:    cfg.Timing.ParamTimeout,
			CommandTimeout:  cfg.Timing.CommandTimeout,
			Logger:          log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open MAVLink link: %w", err)
		}
		return link, nil
	}
	return nil, fmt.Errorf("unknown link kind %q", cfg.Link.Kind)
}

// prompt is shown only when the console reads from a terminal.
func prompt(in io.Reader) string {
	f, ok := in.(*os.File)
	if !ok {
		return ""
	}
	fi, err := f.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return ""
	}
	return console.DefaultPrompt
}
