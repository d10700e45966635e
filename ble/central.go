package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

var log = logrus.WithField("component", "ble")

var (
	// ErrConnectTimeout is returned when the peripheral does not accept the
	// connection within Config.ConnectTimeout.
	ErrConnectTimeout = errors.New("connect timed out")
	// ErrCharacteristicNotFound is returned when the GATT profile lacks the
	// configured characteristic.
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	// ErrLinkLost is returned when BlueZ reports the device went away.
	ErrLinkLost = errors.New("link lost")
)

const (
	bluezAdapterPath = "/org/bluez/hci0"
	device1Interface = "org.bluez.Device1"
)

// Config holds the parameters of a Central.
type Config struct {
	// Address is the board's hardware address, matched case-insensitively.
	Address string
	// Characteristic is the notifying characteristic, short or 128-bit form.
	Characteristic string
	// ScanTimeout bounds discovery. Zero scans until ctx is cancelled.
	ScanTimeout time.Duration
	// ConnectTimeout bounds the connection attempt.
	ConnectTimeout time.Duration
	// ResolveTimeout bounds BlueZ GATT service resolution after connecting.
	ResolveTimeout time.Duration
}

// DefaultConfig returns the defaults for everything except Address.
func DefaultConfig() Config {
	return Config{
		Characteristic: DefaultCharacteristic,
		ScanTimeout:    5 * time.Second,
		ConnectTimeout: 20 * time.Second,
		ResolveTimeout: 15 * time.Second,
	}
}

// Central connects to a single balance board and streams its notifications.
// It never reconnects on its own.
type Central struct {
	adapter *bluetooth.Adapter
	cfg     Config

	enableOnce sync.Once
	enableErr  error
}

// NewCentral creates a Central on the default adapter. An empty Address is
// allowed for Discover; Run requires one.
func NewCentral(cfg Config) (*Central, error) {
	if cfg.Characteristic == "" {
		cfg.Characteristic = DefaultCharacteristic
	}
	char, err := NormalizeUUID(cfg.Characteristic)
	if err != nil {
		return nil, fmt.Errorf("ble: characteristic: %w", err)
	}
	cfg.Characteristic = char

	return &Central{
		adapter: bluetooth.DefaultAdapter,
		cfg:     cfg,
	}, nil
}

// Enable initializes the BLE adapter. Safe to call more than once.
func (c *Central) Enable() error {
	c.enableOnce.Do(func() {
		log.Debug("BLE: Enabling adapter...")
		if err := c.adapter.Enable(); err != nil {
			c.enableErr = fmt.Errorf("failed to enable BLE adapter: %w", err)
			return
		}
		log.Debug("BLE: Adapter enabled")
	})
	return c.enableErr
}

// Run scans for the board, connects, subscribes and then blocks delivering
// notifications to h until the link drops or ctx is cancelled.
// A cancelled ctx after connecting is a clean shutdown and returns nil.
func (c *Central) Run(ctx context.Context, h Handler) error {
	h.OnState(StateScanning)

	if c.cfg.Address == "" {
		h.OnState(StateFailed)
		return errors.New("ble: address is required")
	}
	if err := c.Enable(); err != nil {
		h.OnState(StateFailed)
		return err
	}

	log.WithField("address", c.cfg.Address).Info("BLE: Scanning for balance board...")
	result, err := c.find(ctx)
	if err != nil {
		h.OnState(StateFailed)
		return err
	}
	log.WithField("address", result.Address.String()).Info("BLE: Found balance board")

	l, err := c.connect(ctx, result.Address)
	if err != nil {
		h.OnState(StateFailed)
		return err
	}
	defer l.close()

	h.OnState(StateConnected)
	log.WithField("characteristic", c.cfg.Characteristic).Info("BLE: Connected and streaming")

	err = l.stream(ctx, h.OnNotification)
	h.OnState(StateDisconnected)
	return err
}

// link is an open, subscribed connection.
type link struct {
	device  *bluetooth.Device
	char    *gatt.GattCharacteristic1
	propCh  chan *bluez.PropertyChanged
	lost    <-chan struct{}
	unwatch func()
}

// connect opens the connection and subscribes to the characteristic.
func (c *Central) connect(ctx context.Context, addr bluetooth.Address) (*link, error) {
	log.WithField("address", addr.String()).Info("BLE: Connecting...")

	device, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	devPath := devicePath(addr.String())

	if err := waitForServicesResolved(ctx, devPath, c.cfg.ResolveTimeout); err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("GATT not resolved on %s: %w", addr.String(), err)
	}

	char, err := discoverCharacteristic(devPath, c.cfg.Characteristic)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	lost, unwatch, err := watchConnected(devPath)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	propCh, err := char.WatchProperties()
	if err != nil {
		unwatch()
		device.Disconnect()
		return nil, fmt.Errorf("WatchProperties failed: %w", err)
	}

	if err := char.StartNotify(); err != nil {
		_ = char.UnwatchProperties(propCh)
		unwatch()
		device.Disconnect()
		return nil, fmt.Errorf("StartNotify failed: %w", err)
	}

	return &link{
		device:  device,
		char:    char,
		propCh:  propCh,
		lost:    lost,
		unwatch: unwatch,
	}, nil
}

// dial bounds adapter.Connect by ConnectTimeout and ctx. A connection that
// completes after the deadline is torn down.
func (c *Central) dial(ctx context.Context, addr bluetooth.Address) (*bluetooth.Device, error) {
	type dialResult struct {
		device *bluetooth.Device
		err    error
	}

	resCh := make(chan dialResult, 1)
	abandoned := make(chan struct{})
	go func() {
		device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
		select {
		case resCh <- dialResult{device, err}:
		case <-abandoned:
			if err == nil {
				device.Disconnect()
			}
		}
	}()

	var timeout <-chan time.Time
	if c.cfg.ConnectTimeout > 0 {
		timer := time.NewTimer(c.cfg.ConnectTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect: %w", res.err)
		}
		return res.device, nil
	case <-timeout:
		close(abandoned)
		return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, c.cfg.ConnectTimeout)
	case <-ctx.Done():
		close(abandoned)
		return nil, ctx.Err()
	}
}

// stream forwards characteristic values to onData in arrival order.
func (l *link) stream(ctx context.Context, onData func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.lost:
			return ErrLinkLost
		case update, ok := <-l.propCh:
			if !ok {
				return ErrLinkLost
			}
			if update == nil {
				continue
			}
			if update.Interface != gatt.GattCharacteristic1Interface || update.Name != "Value" {
				continue
			}
			data, ok := update.Value.([]byte)
			if !ok {
				log.WithField("type", fmt.Sprintf("%T", update.Value)).Warn("BLE: Unexpected notification value")
				continue
			}
			onData(data)
		}
	}
}

func (l *link) close() {
	_ = l.char.StopNotify()
	_ = l.char.UnwatchProperties(l.propCh)
	l.unwatch()
	if err := l.device.Disconnect(); err != nil {
		log.WithError(err).Warn("BLE: Disconnect failed")
		return
	}
	log.Info("BLE: Disconnected")
}

// devicePath derives the BlueZ D-Bus object path from a MAC address,
// e.g. "d4:e9:f4:e2:b5:8a" → "/org/bluez/hci0/dev_D4_E9_F4_E2_B5_8A".
func devicePath(mac string) dbus.ObjectPath {
	id := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(mac)), ":", "_")
	return dbus.ObjectPath(bluezAdapterPath + "/dev_" + id)
}

// waitForServicesResolved blocks until BlueZ reports ServicesResolved = true
// for the device, the timeout expires, or ctx is cancelled.
//
// BlueZ resolves the GATT profile asynchronously after the ACL connection is
// up; characteristic lookups before that see an empty tree.
func waitForServicesResolved(ctx context.Context, devPath dbus.ObjectPath, timeout time.Duration) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("dbus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(devPath),
	); err != nil {
		return fmt.Errorf("dbus match: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)

	// Fast path: already resolved (e.g. the board was paired before).
	v, err := conn.Object("org.bluez", devPath).GetProperty(device1Interface + ".ServicesResolved")
	if err == nil {
		if resolved, ok := v.Value().(bool); ok && resolved {
			return nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return errors.New("dbus signal channel closed")
			}
			if resolved, ok := deviceProperty(sig, "ServicesResolved"); ok && resolved {
				return nil
			}
		case <-timer.C:
			return errors.New("timeout waiting for ServicesResolved")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// watchConnected returns a channel closed when BlueZ reports the device's
// Connected property went false. The returned func releases the watch.
func watchConnected(devPath dbus.ObjectPath) (<-chan struct{}, func(), error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, fmt.Errorf("dbus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(devPath),
	); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("dbus match: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)

	lost := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if connected, ok := deviceProperty(sig, "Connected"); ok && !connected {
					close(lost)
					return
				}
			}
		}
	}()

	var once sync.Once
	unwatch := func() {
		once.Do(func() {
			close(stop)
			conn.Close()
		})
	}
	return lost, unwatch, nil
}

// deviceProperty extracts a boolean Device1 property from a PropertiesChanged signal.
func deviceProperty(sig *dbus.Signal, name string) (value bool, ok bool) {
	if sig == nil || len(sig.Body) < 2 {
		return false, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != device1Interface {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed[name]
	if !ok {
		return false, false
	}
	value, ok = v.Value().(bool)
	return value, ok
}

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// discoverCharacteristic calls GetManagedObjects on a fresh D-Bus connection,
// bypassing the go-bluetooth singleton ObjectManager whose cached view can be
// stale right after service resolution.
func discoverCharacteristic(devPath dbus.ObjectPath, charUUID string) (*gatt.GattCharacteristic1, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	var managed managedObjects
	if err := conn.Object("org.bluez", "/").Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&managed); err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}
	log.WithField("objects", len(managed)).Debug("BLE: GetManagedObjects")

	charPath, ok := findCharacteristicPath(managed, devPath, charUUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s under %s", ErrCharacteristicNotFound, charUUID, devPath)
	}
	log.WithField("path", charPath).Debug("BLE: Matched characteristic")

	char, err := gatt.NewGattCharacteristic1(charPath)
	if err != nil {
		return nil, fmt.Errorf("NewGattCharacteristic1(%s): %w", charPath, err)
	}
	return char, nil
}

// findCharacteristicPath returns the first characteristic object exactly
// two levels below devPath (devPath/serviceXXXX/charYYYY) with the given UUID.
func findCharacteristicPath(managed managedObjects, devPath dbus.ObjectPath, charUUID string) (dbus.ObjectPath, bool) {
	prefix := string(devPath) + "/"
	charUUID = strings.ToLower(charUUID)

	var matches []dbus.ObjectPath
	for path, ifaces := range managed {
		p := string(path)
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		parts := strings.Split(p[len(prefix):], "/")
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "service") || !strings.HasPrefix(parts[1], "char") {
			continue
		}

		props, ok := ifaces[gatt.GattCharacteristic1Interface]
		if !ok {
			continue
		}
		uuidVar, ok := props["UUID"]
		if !ok {
			continue
		}
		uuid, ok := uuidVar.Value().(string)
		if !ok || strings.ToLower(uuid) != charUUID {
			continue
		}
		matches = append(matches, path)
	}

	if len(matches) == 0 {
		return "", false
	}
	// Map order is random; pick the lowest handle for a stable choice.
	best := matches[0]
	for _, m := range matches[1:] {
		if m < best {
			best = m
		}
	}
	return best, true
}
