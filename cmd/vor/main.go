// Command vor runs the VOR OSC router as a standalone process: it
// discovers or bootstraps its configuration beneath the platform's VOR
// home directory, starts the Router Supervisor, and blocks until an
// interrupt or terminate signal requests a graceful shutdown (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SutekhVRC/VOR/debugtap"
	"github.com/SutekhVRC/VOR/paths"
	"github.com/SutekhVRC/VOR/router"
	"github.com/SutekhVRC/VOR/status"
)

// shutdownGrace bounds how long main waits for the Router Supervisor to
// finish tearing down after ShutdownAll, mirroring the 2s worker-exit
// budget the routing state machine is designed around (spec.md §5).
const shutdownGrace = 2 * time.Second

func main() {
	enableOnStart := flag.Bool("enable-on-start", false, "mark every discovered route enabled regardless of its saved enable state")
	debug := flag.Bool("debug", false, "attach the in-process debug tap and periodically log how many records it drained")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if err := run(*enableOnStart, *debug, log); err != nil {
		log.Error().Err(err).Msg("vor exited with error")
		os.Exit(1)
	}
}

func run(enableOnStart, debugEnabled bool, log zerolog.Logger) error {
	home, err := paths.HomeDir()
	if err != nil {
		return fmt.Errorf("vor: resolve home dir: %w", err)
	}
	log.Info().Str("home", home).Msg("discovering VOR configuration")

	cfg, err := bootstrapConfigs(home)
	if err != nil {
		return err
	}

	if enableOnStart {
		for i := range cfg.Routes {
			cfg.Routes[i].Enabled = true
		}
	}

	if len(cfg.Routes) == 0 {
		log.Warn().Str("dir", paths.AppConfigDir(home)).Msg("no VOR app configs found; put one JSON route file per app in this directory")
	}
	for _, r := range cfg.Routes {
		log.Info().Str("app", r.AppName).Str("dest", r.DestAddr()).Bool("enabled", r.Enabled).Msg("loaded route")
	}

	var tap *debugtap.Tap
	if debugEnabled {
		tap = debugtap.New()
		go pollDebugTap(tap, log)
	}

	ctrl, statusCh, err := router.Start(cfg.Router, cfg.Routes, cfg.Filter, tap, log)
	if err != nil {
		return fmt.Errorf("vor: start router: %w", err)
	}
	go logStatusUpdates(statusCh, log)

	if ctrl == nil {
		// router.Start already reported an engine-level bind failure on
		// statusCh; give the logger goroutine a moment to drain it before
		// exiting non-zero.
		time.Sleep(100 * time.Millisecond)
		return fmt.Errorf("vor: router failed to start")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctrl.ShutdownAll()
	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("shutdown complete")
	case <-time.After(shutdownGrace):
		log.Warn().Msg("shutdown grace period elapsed, exiting anyway")
	}
	return nil
}

func logStatusUpdates(ch <-chan status.Update, log zerolog.Logger) {
	for u := range ch {
		ev := log.Info()
		if u.Status.Kind == status.Error {
			ev = log.Error()
		}
		idx := u.Index
		if idx == status.EngineIndex {
			ev.Str("scope", "engine").Msg(u.Status.String())
			continue
		}
		ev.Int("route", idx).Msg(u.Status.String())
	}
}

func pollDebugTap(tap *debugtap.Tap, log zerolog.Logger) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if n := tap.Poll(); n > 0 {
			log.Debug().Int("drained", n).Int("buffered", tap.Len()).Msg("debug tap")
		}
	}
}
