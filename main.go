/*
Renders the ReSTIR compute stage headless or in a window, driven by a TOML
configuration file.
*/
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/restir/engine"
	"github.com/spaghettifunk/restir/engine/core"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	frames := flag.Uint64("frames", 0, "stop after this many frames, overriding the configuration")
	flag.Parse()

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = engine.LoadConfig(*configPath); err != nil {
			core.LogFatal("loading configuration: %s", err)
		}
	}
	if *frames > 0 {
		cfg.Frames = *frames
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogFatal("creating engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Initialize()
	if runErr == nil {
		runErr = e.Run()
	}
	if err := errors.Join(runErr, e.Shutdown()); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}
