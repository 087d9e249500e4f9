package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/qr"
	"github.com/vaxport/vaxport-api/internal/scanner"
	"github.com/vaxport/vaxport-api/internal/station"
	"github.com/vaxport/vaxport-api/pkg/config"
	"github.com/vaxport/vaxport-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	role := qr.Role(cfg.Station.Role)
	if !role.Valid() {
		logr.Sugar().Fatalw("unsupported station role", "role", cfg.Station.Role)
	}

	driver := scanner.NewLineDriver()
	driver.RegisterPath(scanner.Device{
		ID:    cfg.Station.DeviceID,
		Label: cfg.Station.DeviceLabel,
	}, cfg.Station.DevicePath)

	client := station.NewClient(station.ClientConfig{
		BaseURL:    cfg.Station.APIBaseURL,
		Token:      cfg.Station.APIToken,
		Timeout:    cfg.Station.SubmitTimeout,
		MaxRetries: uint64(cfg.Station.MaxRetries),
		Logger:     logr,
	})
	runner := station.NewRunner(client, role, cfg.Station.StaffID, logr)

	session := scanner.NewSession(driver, nil, cfg.Station.DebounceInterval, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	devices, err := session.ListDevices(ctx)
	if err != nil {
		logr.Sugar().Fatalw("no capture device", "error", err)
	}
	deviceID := devices[0].ID
	if err := session.Open(ctx, deviceID); err != nil {
		logr.Sugar().Fatalw("failed to open device", "device_id", deviceID, "error", err)
	}

	deviceFailed := make(chan struct{})
	err = session.Start(func(raw string) {
		submission := runner.HandleScan(ctx, raw)
		switch submission.Outcome {
		case station.OutcomeAdministered:
			logr.Info("dose administered",
				zap.String("subject_id", submission.Payload.SubjectID),
				zap.String("vaccine_template_id", submission.Payload.VaccineTemplateID))
		case station.OutcomeDuplicate:
			logr.Info("dose already administered",
				zap.String("subject_id", submission.Payload.SubjectID))
		case station.OutcomeFailed:
			logr.Warn("submission failed, scan again to retry", zap.Error(submission.Err))
		default:
			logr.Warn("scan rejected", zap.Error(submission.Err))
		}

		// Hold the capture loop closed briefly so the same code leaving
		// the frame does not fire again immediately.
		time.Sleep(cfg.Station.RescanDelay)
		session.Resume()
	}, func(err error) {
		logr.Error("capture device failed", zap.Error(err))
		close(deviceFailed)
	})
	if err != nil {
		logr.Sugar().Fatalw("failed to start capture", "error", err)
	}

	logr.Sugar().Infow("scan station ready",
		"device_id", deviceID,
		"role", cfg.Station.Role,
		"api", cfg.Station.APIBaseURL)

	select {
	case <-ctx.Done():
	case <-deviceFailed:
	}

	session.Stop()
	logr.Info("scan station stopped")
	os.Exit(0)
}
