package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"balance-board/ble"
	"balance-board/board"
	"balance-board/config"
	"balance-board/telemetry"
)

// run connects to the board and polls it once per frame until ctx ends or
// the background connection stops.
func run(ctx context.Context, cfg config.Config) error {
	central, err := ble.NewCentral(cfg.Central())
	if err != nil {
		return err
	}

	bb, err := board.New(central, cfg.Tuning())
	if err != nil {
		return err
	}

	hub := telemetry.NewHub()
	defer hub.Close()

	if cfg.Telemetry.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Telemetry.Listen,
			Handler:           telemetry.NewMux(bb, hub),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.Telemetry.Listen).Info("HTTP/WS server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP listen failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var events chan telemetry.Frame
	if cfg.Telemetry.MQTT.Broker != "" {
		pub, err := telemetry.DialMQTT(cfg.Telemetry.MQTT.Broker, cfg.Telemetry.MQTT.ClientID, cfg.Telemetry.MQTT.Topic)
		if err != nil {
			// Dashboards are optional; keep serving input without them.
			log.WithError(err).Warn("MQTT disabled")
		} else {
			events = make(chan telemetry.Frame, 16)
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				publishLoop(pub, events)
			}()
			defer func() {
				close(events)
				<-drained
				pub.Close()
			}()
		}
	}

	bb.Start()
	defer bb.Close()

	go func() {
		wait := cfg.Board.ScanTimeout + cfg.Board.ConnectTimeout + cfg.Board.ResolveTimeout
		if bb.WaitUntilConnected(wait) {
			log.Info("Board ready, lean to steer")
		}
	}()

	return pollLoop(ctx, bb, hub, events, cfg.PollInterval)
}

// pollLoop is the frame loop a game would run: one Direction poll per tick.
func pollLoop(ctx context.Context, bb *board.Board, hub *telemetry.Hub, events chan<- telemetry.Frame, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := board.Neutral
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-bb.Done():
			return bb.Err()
		case <-ticker.C:
		}

		dir := bb.Direction()
		frame := telemetry.NewFrame(bb.Snapshot())

		if hub.Clients() > 0 {
			if payload, err := frame.Marshal(); err == nil {
				hub.Broadcast(payload)
			}
		}

		if dir == last {
			continue
		}
		last = dir
		log.WithField("direction", dir).Info("Direction")

		if events != nil {
			select {
			case events <- frame:
			default:
				log.Warn("MQTT backlog full, dropping direction event")
			}
		}
	}
}

type framePublisher interface {
	Publish(telemetry.Frame) error
}

// publishLoop drains direction events so a slow broker never stalls a frame.
// It returns once events is closed and every queued frame has been sent.
func publishLoop(pub framePublisher, events <-chan telemetry.Frame) {
	for f := range events {
		if err := pub.Publish(f); err != nil {
			log.WithError(err).Warn("MQTT publish failed")
		}
	}
}
