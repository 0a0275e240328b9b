package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/habedi/glm/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main is the entry point of the application.
// It sets up logging based on the DEBUG_GLM environment variable, cancels the command
// context on the first interrupt and exits on the second.
func main() {
	configureLogLevelFromEnv()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, cancel, func(msg string) { log.Error().Msg(msg) }, os.Exit)

	cmd.Execute(ctx)
}

// configureLogLevelFromEnv enables debug logging when DEBUG_GLM is set to anything but a
// false value, and disables logging otherwise.
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_GLM") {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 2)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	return stopChan
}

// handleInterrupt cancels the running command on the first signal. A running installer
// process is allowed to finish; a second signal exits immediately.
func handleInterrupt(stopChan chan os.Signal, cancel context.CancelFunc, fatalLog func(string), exit func(int)) {
	<-stopChan
	fatalLog("Interrupt signal received. Stopping after the current step...")
	cancel()
	<-stopChan
	fatalLog("Interrupt signal received again. Exiting...")
	exit(1)
}
