package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	hook "github.com/robotn/gohook"

	"windowcast.app/recorder/internal/capture"
	"windowcast.app/recorder/internal/config"
	"windowcast.app/recorder/internal/log"
	"windowcast.app/recorder/internal/recording"
	"windowcast.app/recorder/internal/render"
)

type Application struct {
	cfg        config.Recording
	engine     *recording.Engine
	supervisor *capture.Supervisor
	showAll    bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewApplication(cfg config.Recording, showAll bool) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	sup := capture.NewSupervisor()
	engine := recording.NewEngine(capture.RobotgoLister{}, capture.SystemPermissions(), sup, render.NewComposer())
	return &Application{
		cfg:        cfg,
		engine:     engine,
		supervisor: sup,
		showAll:    showAll,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (app *Application) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go app.handleSignals(sigChan)

	// Global stop hotkey, usable while another app has focus.
	go app.listenHotkey()

	for {
		select {
		case <-app.ctx.Done():
			return nil
		default:
		}
		if err := app.showMenu(); err != nil {
			return err
		}
	}
}

func (app *Application) showMenu() error {
	fmt.Println("\nCommands:")
	fmt.Println("1. List windows")
	fmt.Println("2. Start recording")
	fmt.Println("3. Stop recording")
	fmt.Println("4. Exit")
	fmt.Print("Choose an option: ")

	var choice int
	if _, err := fmt.Scanln(&choice); err != nil {
		return nil
	}

	switch choice {
	case 1:
		return app.listWindows()
	case 2:
		return app.startRecording()
	case 3:
		return app.stopRecording()
	case 4:
		return app.cleanup()
	default:
		fmt.Println("Invalid option")
		return nil
	}
}

func (app *Application) listWindows() error {
	mode := capture.RecordableOnly
	if app.showAll {
		mode = capture.IncludeAll
	}
	windows, err := app.engine.ListWindows(mode)
	if err != nil {
		fmt.Printf("Cannot list windows: %v\n", err)
		return nil
	}
	if len(windows) == 0 {
		fmt.Println("No recordable windows found")
		return nil
	}
	for _, w := range windows {
		fmt.Printf("  [%d] %s\n", w.ID, w)
	}
	return nil
}

func (app *Application) startRecording() error {
	if app.engine.State() != recording.StateIdle {
		fmt.Println("Already recording")
		return nil
	}

	fmt.Print("Window id: ")
	var id uint64
	if _, err := fmt.Scanln(&id); err != nil {
		fmt.Println("Invalid window id")
		return nil
	}

	cfg := app.cfg
	cfg.WindowID = id
	if cfg.Output.Path == "" {
		cfg.Output.Path = recording.OutputBaseName("output", time.Now().Format("2006-01-02-150405"))
		if err := os.MkdirAll(filepath.Dir(cfg.Output.Path), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if err := app.engine.StartRecording(app.ctx, cfg); err != nil {
		fmt.Printf("Cannot start: %v\n", err)
		return nil
	}
	app.cfg.Output.Path = "" // next session gets a fresh name
	fmt.Println("Recording... press ctrl+shift+s (or choose Stop) to finish.")
	return nil
}

func (app *Application) stopRecording() error {
	result, err := app.engine.StopRecording(app.ctx)
	if err != nil {
		fmt.Printf("Cannot stop: %v\n", err)
		return nil
	}
	fmt.Printf("Saved %s (%.1fs, %d bytes)\n", result.Path, result.Duration.Seconds(), result.SizeBytes)
	return nil
}

func (app *Application) listenHotkey() {
	hook.Register(hook.KeyDown, []string{"s", "ctrl", "shift"}, func(e hook.Event) {
		if app.engine.State() == recording.StateRecording {
			if _, err := app.engine.StopRecording(app.ctx); err != nil {
				log.Base().Warn().Err(err).Msg("hotkey stop failed")
			} else {
				fmt.Println("\nRecording stopped via hotkey")
			}
		}
	})
	s := hook.Start()
	<-hook.Process(s)
}

func (app *Application) cleanup() error {
	if app.engine.State() == recording.StateRecording {
		if _, err := app.engine.StopRecording(app.ctx); err != nil {
			log.Base().Warn().Err(err).Msg("stop on exit failed")
		}
	}
	// Release all camera hardware before the process goes away.
	app.supervisor.StopAll()
	hook.End()
	app.cancel()
	return nil
}

func (app *Application) handleSignals(sigChan chan os.Signal) {
	for sig := range sigChan {
		fmt.Printf("\nReceived signal: %v\n", sig)
		if app.engine.State() == recording.StateRecording {
			fmt.Println("Stopping recording...")
			if _, err := app.engine.StopRecording(app.ctx); err != nil {
				log.Base().Error().Err(err).Msg("stop failed")
			}
		} else {
			fmt.Println("Exiting application...")
			app.supervisor.StopAll()
			app.cancel()
			return
		}
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML recording configuration")
	showAll := flag.Bool("all", false, "list all windows, bypassing the recordable filter")
	output := flag.String("output", "", "output file path")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log.Configure(log.Config{Level: *level, Console: true})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Base().Fatal().Err(err).Msg("cannot load configuration")
		}
		cfg = loaded
	}
	if *output != "" {
		cfg.Output.Path = *output
	}

	app := NewApplication(cfg, *showAll)
	if err := app.Run(); err != nil {
		log.Base().Fatal().Err(err).Msg("application error")
	}
}
