package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/target/namescreen/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "worker only",
			modes: []config.ServiceMode{config.ServiceModeWorker},
			want:  1,
		},
		{
			name:  "worker and reaper",
			modes: []config.ServiceMode{config.ServiceModeWorker, config.ServiceModeReaper},
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestStartBackgroundServices_OnlyEnabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan string, 2)
	services := []backgroundService{
		{mode: config.ServiceModeWorker, name: "worker", start: func(ctx context.Context) error {
			started <- "worker"
			<-ctx.Done()
			return nil
		}},
		{mode: config.ServiceModeReaper, name: "reaper", start: func(context.Context) error {
			started <- "reaper"
			return nil
		}},
	}
	errCh := make(chan error, 2)
	handles := startBackgroundServices(ctx, services,
		map[config.ServiceMode]bool{config.ServiceModeWorker: true}, errCh, slog.Default())

	if len(handles) != 1 || handles[0].name != "worker" {
		t.Fatalf("handles = %+v, want only worker", handles)
	}
	if got := <-started; got != "worker" {
		t.Fatalf("started %q", got)
	}
	cancel()
	waitForService(handles[0].done, "worker", slog.Default())
	select {
	case err := <-errCh:
		t.Fatalf("unexpected error after cancel: %v", err)
	default:
	}
}

func TestWaitForShutdown_ServiceError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	services := []backgroundService{{
		mode:  config.ServiceModeWorker,
		name:  "worker",
		start: func(context.Context) error { return errors.New("queue unreachable") },
	}}
	handles := startBackgroundServices(ctx, services,
		map[config.ServiceMode]bool{config.ServiceModeWorker: true}, errCh, slog.Default())

	err := waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      slog.Default(),
		backgrounds: handles,
		signals:     make(chan os.Signal),
	})
	if err == nil || err.Error() != "worker: queue unreachable" {
		t.Fatalf("err = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("service context not cancelled")
	}
}

func TestWaitForShutdown_Signal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	sig <- os.Interrupt

	stopped := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopped)
	}()

	err := waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       make(chan error),
		logger:      slog.Default(),
		backgrounds: []backgroundServiceHandle{{name: "worker", done: stopped}},
		signals:     sig,
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("background service not stopped")
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, worker"}
	got := GetEnabledServices(cfg)
	if len(got) != 2 || got[0] != "reaper" || got[1] != "worker" {
		t.Fatalf("GetEnabledServices = %v", got)
	}
	if err := ValidateServiceConfig(cfg); err != nil {
		t.Fatalf("ValidateServiceConfig: %v", err)
	}
	if err := ValidateServiceConfig(&config.AppConfig{Services: "http"}); err == nil {
		t.Fatal("expected error for unknown service")
	}
}
