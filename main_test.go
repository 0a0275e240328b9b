package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigureLogLevelFromEnv_Disabled(t *testing.T) {
	testCases := []struct {
		envVal      string
		expectedLvl zerolog.Level
	}{
		{"false", zerolog.Disabled},
		{"0", zerolog.Disabled},
		{"", zerolog.Disabled},
	}

	for _, tc := range testCases {
		t.Setenv("DEBUG_GLM", tc.envVal)
		configureLogLevelFromEnv()
		if zerolog.GlobalLevel() != tc.expectedLvl {
			t.Errorf("DEBUG_GLM=%q: expected log level %v, got %v",
				tc.envVal, tc.expectedLvl, zerolog.GlobalLevel())
		}
	}
}

func TestConfigureLogLevelFromEnv_Debug(t *testing.T) {
	testCases := []struct {
		envVal      string
		expectedLvl zerolog.Level
	}{
		{"true", zerolog.DebugLevel},
		{"1", zerolog.DebugLevel},
		{"random", zerolog.DebugLevel},
	}

	for _, tc := range testCases {
		t.Setenv("DEBUG_GLM", tc.envVal)
		configureLogLevelFromEnv()
		if zerolog.GlobalLevel() != tc.expectedLvl {
			t.Errorf("DEBUG_GLM=%q: expected log level %v, got %v",
				tc.envVal, tc.expectedLvl, zerolog.GlobalLevel())
		}
	}
}

func TestSetupInterruptListener(t *testing.T) {
	stopChan := setupInterruptListener()
	if stopChan == nil {
		t.Fatal("expected non-nil channel from setupInterruptListener")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		stopChan <- os.Interrupt
	}()

	select {
	case sig := <-stopChan:
		if sig != os.Interrupt {
			t.Errorf("expected os.Interrupt, got %v", sig)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("did not receive signal on channel")
	}
}

func TestHandleInterrupt(t *testing.T) {
	stopChan := make(chan os.Signal, 1)
	exitCalled := make(chan int, 1)
	logged := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleInterrupt(stopChan, cancel, func(msg string) { logged <- msg }, func(code int) { exitCalled <- code })

	// The first signal only cancels the context.
	stopChan <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("context was not cancelled on the first interrupt")
	}
	select {
	case code := <-exitCalled:
		t.Fatalf("exit called after the first interrupt with code %d", code)
	default:
	}

	stopChan <- os.Interrupt
	select {
	case code := <-exitCalled:
		if code != 1 {
			t.Errorf("expected exit code 1, got %d", code)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("exit function was not called on the second interrupt")
	}
	if msg := <-logged; msg != "Interrupt signal received. Stopping after the current step..." {
		t.Errorf("unexpected first message %q", msg)
	}
}
