package ble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// ErrDeviceNotFound is returned when the scan window closes without a match.
var ErrDeviceNotFound = errors.New("device not found")

// Advertisement is one device seen during discovery.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// MatchAddress reports whether two hardware addresses are the same,
// ignoring case and surrounding whitespace.
func MatchAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// scan runs the adapter scan until visit returns true, the window closes,
// or ctx is cancelled. It reports whether visit stopped the scan.
func (c *Central) scan(ctx context.Context, window time.Duration, visit func(bluetooth.ScanResult) bool) (bool, error) {
	var (
		mu      sync.Mutex
		matched bool
	)

	done := make(chan error, 1)
	go func() {
		done <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			mu.Lock()
			defer mu.Unlock()
			if matched {
				return
			}
			if visit(result) {
				matched = true
				adapter.StopScan()
			}
		})
	}()

	var timeout <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		timeout = timer.C
	}

	var err error
	select {
	case err = <-done:
	case <-timeout:
		c.adapter.StopScan()
		err = <-done
	case <-ctx.Done():
		c.adapter.StopScan()
		<-done
		err = ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if matched {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan: %w", err)
	}
	return false, nil
}

// find scans for the configured address.
func (c *Central) find(ctx context.Context) (bluetooth.ScanResult, error) {
	var found bluetooth.ScanResult
	ok, err := c.scan(ctx, c.cfg.ScanTimeout, func(result bluetooth.ScanResult) bool {
		if !MatchAddress(result.Address.String(), c.cfg.Address) {
			return false
		}
		found = result
		return true
	})
	if err != nil {
		return bluetooth.ScanResult{}, err
	}
	if !ok {
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, c.cfg.Address)
	}
	return found, nil
}

// Discover lists every advertiser seen during the window, strongest first.
func (c *Central) Discover(ctx context.Context, window time.Duration) ([]Advertisement, error) {
	if err := c.Enable(); err != nil {
		return nil, err
	}

	seen := make(map[string]Advertisement)
	_, err := c.scan(ctx, window, func(result bluetooth.ScanResult) bool {
		addr := strings.ToUpper(result.Address.String())
		adv := seen[addr]
		adv.Address = addr
		adv.RSSI = result.RSSI
		if name := result.LocalName(); name != "" {
			adv.Name = name
		}
		seen[addr] = adv
		return false
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	return sortAdvertisements(seen), nil
}

func sortAdvertisements(seen map[string]Advertisement) []Advertisement {
	out := make([]Advertisement, 0, len(seen))
	for _, adv := range seen {
		out = append(out, adv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}
