package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/moyu/internal/alert"
	"github.com/ayusman/moyu/internal/app"
	"github.com/ayusman/moyu/internal/capture"
	"github.com/ayusman/moyu/internal/command"
	"github.com/ayusman/moyu/internal/config"
	"github.com/ayusman/moyu/internal/detector"
	"github.com/ayusman/moyu/internal/logger"
	"github.com/ayusman/moyu/internal/metrics"
	"github.com/ayusman/moyu/internal/mqtt"
	"github.com/ayusman/moyu/internal/notify"
	"github.com/ayusman/moyu/internal/plugin"
	"github.com/ayusman/moyu/internal/presence"
	"github.com/ayusman/moyu/internal/server"
	"github.com/ayusman/moyu/internal/snapshot"
	"github.com/ayusman/moyu/internal/store"
	"github.com/ayusman/moyu/internal/tray"
	"github.com/ayusman/moyu/internal/workapp"
)

// commandTimeout bounds notifier and work-app helper processes.
const commandTimeout = 10 * time.Second

func main() {
	parser := argparse.NewParser("moyu", "Alert when other people appear in front of the camera")
	configPath := parser.String("c", "config", &argparse.Options{Help: "Config file merged over the bundled defaults"})
	headless := parser.Flag("", "headless", &argparse.Options{Help: "Run without the system tray"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	logCloser := logger.Init(cfg.Log)
	defer logCloser.Close()
	log.WithField("sources", cfg.SourceFiles).Info("moyu starting")

	det, err := detector.New(detector.Config{
		Backend:       cfg.Detector.Backend,
		MinConfidence: cfg.Camera.MinConfidence,
		Python:        cfg.Detector.Python,
		ScriptPath:    cfg.Detector.ScriptPath,
		ModelPath:     cfg.Detector.ModelPath,
		ConfigPath:    cfg.Detector.ConfigPath,
	})
	if err != nil {
		log.WithError(err).Fatal("Face detector unavailable")
	}

	m := metrics.New()
	cam := capture.NewCamera(cfg.CameraIndex, cfg.Camera.FrameWidth, cfg.Camera.FrameHeight)
	worker, err := presence.NewWorker(presence.NewSettings(cfg), cam, det, presence.WithRecorder(m))
	if err != nil {
		det.Close()
		log.WithError(err).Fatal("Failed to start presence worker")
	}

	// Alert history is optional; run without it if the database cannot open.
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.WithError(err).Warn("Alert history disabled")
		st = nil
	} else {
		defer st.Close()
	}

	runner := command.NewExecutor(commandTimeout)
	actions := app.Actions{
		Notifier:       notify.New(runtime.GOOS, runner),
		NotifyDuration: cfg.UI.NotificationDuration(),
		Saver:          snapshot.New(cfg.Snapshot.Enabled, cfg.Snapshot.Directory),
		Switcher:       workapp.New(runtime.GOOS, cfg.WorkApp, runner),
		Plugins:        loadPlugins(cfg.Plugins),
		Store:          st,
	}

	opts := []app.Option{app.WithMetrics(m)}
	if st != nil {
		opts = append(opts, app.WithStore(st))
	}

	publisher := connectMQTT(cfg.MQTT)
	if publisher != nil {
		defer publisher.Close()
		actions.Publisher = publisher
		opts = append(opts, app.WithStateListener(publisher.QueueState))
	}

	var tr *tray.Tray
	if !*headless && cfg.UI.EnableSystemTray {
		if tray.Supported() {
			tr = tray.New()
		} else {
			log.Info("System tray not available, running headless")
		}
	}
	if tr != nil {
		opts = append(opts,
			app.WithStatusListener(tr.SetStatus),
			app.WithAlertListener(func(ev *alert.Event) { tr.SetLastAlert(ev.Time) }),
			app.WithEnabledListener(tr.SetEnabled),
		)
	}

	consumer := app.New(app.Config{
		Cooldown:        cfg.Cooldown(),
		Message:         cfg.UI.Message,
		MessageDuration: cfg.UI.MessageDuration(),
		RetentionDays:   cfg.Store.RetentionDays,
	}, worker, actions.Dispatcher(), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			Source:  worker,
			Control: consumer,
			Store:   st,
			Metrics: m,
		})
		go func() {
			if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
				log.WithError(err).Error("Preview server failed")
			}
		}()
	}

	worker.Start()
	go consumer.Run(ctx)

	if tr != nil {
		tr.SetEnabled(consumer.AlertsEnabled())
		tr.SetLastAlert(consumer.LastAlert())
		tr.OnToggle(consumer.SetAlertsEnabled)
		tr.OnPreview(func() {
			url := "http://" + cfg.Server.Addr + "/"
			name, args := command.OpenURLCommand(runtime.GOOS, url)
			if _, err := runner.Run(context.Background(), name, args...); err != nil {
				log.WithError(err).Warn("Failed to open preview")
			}
		})
		tr.OnQuit(stop)
		go func() {
			select {
			case <-ctx.Done():
			case <-worker.Done():
			}
			tr.Quit()
		}()

		log.Info("moyu running in the system tray")
		tr.Run()
		stop()
	} else {
		log.Info("moyu running headless, press Ctrl+C to stop")
		select {
		case <-ctx.Done():
		case <-worker.Done():
		}
	}

	log.Info("Shutting down")
	if !worker.Stop(presence.DefaultStopTimeout) {
		log.Warn("Presence worker did not stop in time")
	}
}

// connectMQTT returns a connected publisher, or nil when MQTT is disabled or
// the broker cannot be reached.
func connectMQTT(cfg config.MQTT) *mqtt.Client {
	if !cfg.Enabled {
		return nil
	}
	c, err := mqtt.New(cfg)
	if err != nil {
		log.WithError(err).Warn("MQTT disabled")
		return nil
	}
	if err := c.Connect(); err != nil {
		log.WithError(err).Warn("MQTT broker unreachable, publishing disabled")
		return nil
	}
	return c
}

// loadPlugins discovers the alert hooks in the plugin directory.
func loadPlugins(cfg config.Plugins) []alert.Action {
	if !cfg.Enabled {
		return nil
	}
	manager := plugin.NewManager(cfg.Directory)
	if err := manager.Discover(); err != nil {
		log.WithError(err).Warn("Failed to discover plugins")
		return nil
	}
	actions := plugin.Actions(manager, plugin.NewExecutor(cfg.Timeout()))
	for _, p := range manager.List() {
		log.WithFields(log.Fields{
			"plugin":  p.Manifest.Name,
			"version": p.Manifest.Version,
		}).Info("Plugin loaded")
	}
	return actions
}
