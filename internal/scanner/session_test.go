package scanner

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	frames chan string
	errs   chan error
	closed bool
	mu     sync.Mutex
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frames: make(chan string, 16), errs: make(chan error, 1)}
}

func (c *fakeCapture) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-c.errs:
		return "", err
	case frame := <-c.frames:
		return frame, nil
	}
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeDriver struct {
	devices []Device
	capture *fakeCapture
	openErr error
}

func (d *fakeDriver) ListDevices(ctx context.Context) ([]Device, error) {
	return d.devices, nil
}

func (d *fakeDriver) Open(ctx context.Context, deviceID string) (Capture, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.capture, nil
}

func newTestSession(t *testing.T, driver Driver, registry *Registry) *Session {
	t.Helper()
	return NewSession(driver, registry, 100*time.Millisecond, nil)
}

func TestListDevicesEmpty(t *testing.T) {
	s := newTestSession(t, &fakeDriver{}, nil)

	_, err := s.ListDevices(context.Background())
	require.ErrorIs(t, err, ErrNoDeviceFound)
	assert.Equal(t, StateIdle, s.State())
}

func TestOpenTransitionsToReady(t *testing.T) {
	driver := &fakeDriver{capture: newFakeCapture()}
	s := newTestSession(t, driver, nil)

	require.NoError(t, s.Open(context.Background(), "cam0"))
	assert.Equal(t, StateReady, s.State())
	s.Stop()
	assert.Equal(t, StateIdle, s.State())
}

func TestOpenSameDeviceTwiceIsBusy(t *testing.T) {
	registry := NewRegistry()
	driver := &fakeDriver{capture: newFakeCapture()}

	first := newTestSession(t, driver, registry)
	require.NoError(t, first.Open(context.Background(), "cam0"))
	defer first.Stop()

	second := newTestSession(t, driver, registry)
	err := second.Open(context.Background(), "cam0")
	require.ErrorIs(t, err, ErrDeviceBusy)

	// Released devices can be rebound.
	first.Stop()
	require.NoError(t, second.Open(context.Background(), "cam0"))
	second.Stop()
}

func TestDecodeDeliveredOnce(t *testing.T) {
	capture := newFakeCapture()
	driver := &fakeDriver{capture: capture}
	s := newTestSession(t, driver, nil)

	decodes := make(chan string, 16)
	require.NoError(t, s.Open(context.Background(), "cam0"))
	require.NoError(t, s.Start(func(raw string) { decodes <- raw }, nil))
	defer s.Stop()

	capture.frames <- "doctor/u1/v1"

	select {
	case raw := <-decodes:
		assert.Equal(t, "doctor/u1/v1", raw)
	case <-time.After(time.Second):
		t.Fatal("decode not delivered")
	}

	// Suspended: a second frame must not be delivered until Resume.
	capture.frames <- "doctor/u2/v2"
	select {
	case raw := <-decodes:
		t.Fatalf("unexpected decode while suspended: %q", raw)
	case <-time.After(150 * time.Millisecond):
	}

	s.Resume()
	select {
	case raw := <-decodes:
		assert.Equal(t, "doctor/u2/v2", raw)
	case <-time.After(time.Second):
		t.Fatal("decode not delivered after resume")
	}
}

func TestDuplicateFramesDebounced(t *testing.T) {
	capture := newFakeCapture()
	driver := &fakeDriver{capture: capture}
	s := NewSession(driver, nil, time.Minute, nil)

	decodes := make(chan string, 16)
	require.NoError(t, s.Open(context.Background(), "cam0"))
	require.NoError(t, s.Start(func(raw string) {
		decodes <- raw
		s.Resume()
	}, nil))
	defer s.Stop()

	// The same code sits in frame across several captures.
	capture.frames <- "doctor/u1/v1"
	capture.frames <- "doctor/u1/v1"
	capture.frames <- "doctor/u1/v1"
	capture.frames <- "doctor/u9/v9"

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case raw := <-decodes:
			got = append(got, raw)
		case <-timeout:
			t.Fatalf("expected 2 decodes, got %v", got)
		}
	}
	assert.Equal(t, []string{"doctor/u1/v1", "doctor/u9/v9"}, got)

	select {
	case raw := <-decodes:
		t.Fatalf("duplicate decode delivered: %q", raw)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDeviceErrorSurfacedOnce(t *testing.T) {
	capture := newFakeCapture()
	driver := &fakeDriver{capture: capture}
	s := newTestSession(t, driver, nil)

	errs := make(chan error, 1)
	require.NoError(t, s.Open(context.Background(), "cam0"))
	require.NoError(t, s.Start(func(string) {}, func(err error) { errs <- err }))
	defer s.Stop()

	deviceErr := errors.New("device unplugged")
	capture.errs <- deviceErr

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, deviceErr)
	case <-time.After(time.Second):
		t.Fatal("device error not surfaced")
	}
	assert.Equal(t, StateError, s.State())
}

func TestStopIsIdempotent(t *testing.T) {
	capture := newFakeCapture()
	driver := &fakeDriver{capture: capture}
	s := newTestSession(t, driver, nil)

	require.NoError(t, s.Open(context.Background(), "cam0"))
	require.NoError(t, s.Start(func(string) {}, nil))

	s.Stop()
	s.Stop()
	s.Stop()
	assert.Equal(t, StateIdle, s.State())

	capture.mu.Lock()
	closed := capture.closed
	capture.mu.Unlock()
	assert.True(t, closed)
}

func TestStartRequiresOpen(t *testing.T) {
	s := newTestSession(t, &fakeDriver{}, nil)
	err := s.Start(func(string) {}, nil)
	require.ErrorIs(t, err, ErrSessionState)
}

func TestLineDriverReadsLines(t *testing.T) {
	driver := NewLineDriver()
	r, w := io.Pipe()
	driver.Register(Device{ID: "hid0", Label: "USB scanner"}, func() (io.ReadCloser, error) {
		return r, nil
	})

	devices, err := driver.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)

	capture, err := driver.Open(context.Background(), "hid0")
	require.NoError(t, err)
	defer capture.Close()

	go func() {
		_, _ = w.Write([]byte("doctor/u1/v1\n\n  worker/u2/d2  \n"))
		_ = w.Close()
	}()

	raw, err := capture.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "doctor/u1/v1", raw)

	raw, err = capture.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "worker/u2/d2", raw)

	_, err = capture.Read(context.Background())
	require.ErrorIs(t, err, io.EOF)
}
