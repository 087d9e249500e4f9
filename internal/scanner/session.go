package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle           State = "idle"
	StateListingDevices State = "listing_devices"
	StateReady          State = "ready"
	StateCapturing      State = "capturing"
	StateError          State = "error"
)

// DecodeFunc receives one raw payload string per distinct physical scan.
type DecodeFunc func(raw string)

// ErrorFunc receives device failures observed by the capture loop.
type ErrorFunc func(err error)

// Session drives one capture device. It delivers decoded strings in frame
// order and suspends after every delivery until the caller resumes or stops;
// it never restarts on its own after a successful decode.
type Session struct {
	driver   Driver
	registry *Registry
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	deviceID string
	capture  Capture
	cancel   context.CancelFunc
	resume   chan struct{}
	done     chan struct{}
}

// NewSession constructs an idle session. debounce is the window in which a
// repeated decode of the same still-visible code is dropped.
func NewSession(driver Driver, registry *Registry, debounce time.Duration, logger *zap.Logger) *Session {
	if registry == nil {
		registry = NewRegistry()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		driver:   driver,
		registry: registry,
		debounce: debounce,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ListDevices enumerates attached capture devices. Zero devices surfaces
// ErrNoDeviceFound and the session stays idle so the caller can re-enumerate.
func (s *Session) ListDevices(ctx context.Context) ([]Device, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrSessionState
	}
	s.state = StateListingDevices
	s.mu.Unlock()

	devices, err := s.driver.ListDevices(ctx)

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDeviceFound
	}
	return devices, nil
}

// Open binds the session to one device. At most one session may hold a
// device; a concurrent open is rejected with ErrDeviceBusy.
func (s *Session) Open(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionState
	}
	s.mu.Unlock()

	if err := s.registry.claim(deviceID, s); err != nil {
		return err
	}

	capture, err := s.driver.Open(ctx, deviceID)
	if err != nil {
		s.registry.release(deviceID, s)
		return err
	}

	s.mu.Lock()
	s.state = StateReady
	s.deviceID = deviceID
	s.capture = capture
	s.mu.Unlock()
	return nil
}

// Start begins the capture loop. After each delivered decode the loop
// suspends until Resume or Stop.
func (s *Session) Start(onDecode DecodeFunc, onError ErrorFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrSessionState
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.resume = make(chan struct{}, 1)
	s.done = done
	s.state = StateCapturing

	go s.loop(ctx, s.capture, done, onDecode, onError)
	return nil
}

// Resume lifts the post-decode suspension so the loop emits again. Callers
// use it after rejecting an invalid payload.
func (s *Session) Resume() {
	s.mu.Lock()
	resume := s.resume
	s.mu.Unlock()
	if resume == nil {
		return
	}
	select {
	case resume <- struct{}{}:
	default:
	}
}

// Stop tears down the capture loop and releases the device. Idempotent:
// stopping an idle session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	capture := s.capture
	deviceID := s.deviceID
	done := s.done
	s.cancel = nil
	s.capture = nil
	s.deviceID = ""
	s.resume = nil
	s.done = nil
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if capture != nil {
		_ = capture.Close()
	}
	if done != nil {
		<-done
	}
	if deviceID != "" {
		s.registry.release(deviceID, s)
	}
	s.logger.Debug("scanner session stopped", zap.String("device_id", deviceID))
}

func (s *Session) loop(ctx context.Context, capture Capture, done chan struct{}, onDecode DecodeFunc, onError ErrorFunc) {
	defer close(done)

	var lastValue string
	var lastSeen time.Time

	for {
		raw, err := capture.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.mu.Lock()
			s.state = StateError
			s.mu.Unlock()
			s.logger.Warn("capture device failed", zap.Error(err))
			if onError != nil {
				onError(err)
			}
			return
		}

		now := time.Now()
		if raw == lastValue && now.Sub(lastSeen) < s.debounce {
			// Same code still in frame; not a new physical scan.
			lastSeen = now
			continue
		}
		lastValue = raw
		lastSeen = now

		onDecode(raw)

		s.mu.Lock()
		resume := s.resume
		s.mu.Unlock()
		if resume == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-resume:
		}
	}
}
