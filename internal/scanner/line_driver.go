package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LineDriver exposes newline-delimited decode streams as capture devices.
// Handheld scanners in serial or HID stream mode emit one line per decoded
// code, which is what the station binary consumes.
type LineDriver struct {
	mu      sync.Mutex
	devices []Device
	openers map[string]func() (io.ReadCloser, error)
}

// NewLineDriver returns a driver with no registered devices.
func NewLineDriver() *LineDriver {
	return &LineDriver{openers: make(map[string]func() (io.ReadCloser, error))}
}

// Register adds a device backed by the provided opener.
func (d *LineDriver) Register(dev Device, open func() (io.ReadCloser, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = append(d.devices, dev)
	d.openers[dev.ID] = open
}

// RegisterPath adds a device backed by a filesystem path (serial device node
// or FIFO).
func (d *LineDriver) RegisterPath(dev Device, path string) {
	d.Register(dev, func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// ListDevices returns the registered devices.
func (d *LineDriver) ListDevices(ctx context.Context) ([]Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Device, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

// Open starts a capture stream for the device.
func (d *LineDriver) Open(ctx context.Context, deviceID string) (Capture, error) {
	d.mu.Lock()
	open, ok := d.openers[deviceID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device %q", deviceID)
	}

	source, err := open()
	if err != nil {
		return nil, fmt.Errorf("open device %q: %w", deviceID, err)
	}

	c := &lineCapture{
		source: source,
		lines:  make(chan string, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

type lineCapture struct {
	source    io.ReadCloser
	lines     chan string
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *lineCapture) pump() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.source)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		case <-c.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.errs <- err
	}
}

func (c *lineCapture) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-c.errs:
		return "", err
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *lineCapture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.source.Close()
	})
	return err
}
