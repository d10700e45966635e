package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "board:\n  address: 'C0:98:E5:49:00:01'\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tuning := cfg.Tuning()
	if tuning.Activation != 5 || tuning.Release != 3 || tuning.Samples != 5 {
		t.Fatalf("tuning=%+v want 5/3/5", tuning)
	}
	central := cfg.Central()
	if central.Characteristic != "2a57" {
		t.Fatalf("characteristic=%q want 2a57", central.Characteristic)
	}
	if central.ScanTimeout != 5*time.Second || central.ConnectTimeout != 20*time.Second {
		t.Fatalf("timeouts scan=%s connect=%s", central.ScanTimeout, central.ConnectTimeout)
	}
	if cfg.PollInterval != 16*time.Millisecond {
		t.Fatalf("poll_interval=%s want 16ms", cfg.PollInterval)
	}
	if cfg.Telemetry.Listen != "" || cfg.Telemetry.MQTT.Broker != "" {
		t.Fatalf("telemetry should be disabled by default")
	}
	if cfg.Telemetry.MQTT.Topic != "balanceboard/direction" {
		t.Fatalf("topic=%q", cfg.Telemetry.MQTT.Topic)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeTempConfig(t, `board:
  address: 'c0:98:e5:49:00:01'
  characteristic: 19b10001-e8f2-537e-4f6c-d104768a1214
  activation_deg: 8
  release_deg: 0
  smoothing_samples: 3
  scan_timeout: 30s
poll_interval: 250ms
telemetry:
  listen: ":9000"
  mqtt:
    broker: tcp://localhost:1883
    topic: game/input
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	tuning := cfg.Tuning()
	if tuning.Activation != 8 || tuning.Release != 0 || tuning.Samples != 3 {
		t.Fatalf("tuning=%+v want 8/0/3", tuning)
	}
	if cfg.Board.ScanTimeout != 30*time.Second || cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("scan_timeout=%s poll_interval=%s", cfg.Board.ScanTimeout, cfg.PollInterval)
	}
	if cfg.Telemetry.Listen != ":9000" || cfg.Telemetry.MQTT.Topic != "game/input" {
		t.Fatalf("telemetry=%+v", cfg.Telemetry)
	}
	if cfg.Telemetry.MQTT.ClientID != "balance-board" {
		t.Fatalf("client_id=%q", cfg.Telemetry.MQTT.ClientID)
	}
}

func TestValidate_RequiresAddress(t *testing.T) {
	cfg := Default()
	requireErrEq(t, cfg.Validate(), "board.address is required")
}

func TestLoad_TuningValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "ReleaseEqualsActivation",
			body: "board:\n  activation_deg: 4\n  release_deg: 4\n",
			want: "board.release_deg must be < board.activation_deg",
		},
		{
			name: "ReleaseAboveDefaultActivation",
			body: "board:\n  release_deg: 6\n",
			want: "board.release_deg must be < board.activation_deg",
		},
		{
			name: "NegativeRelease",
			body: "board:\n  release_deg: -1\n",
			want: "board.release_deg must be >= 0",
		},
		{
			name: "NegativeActivation",
			body: "board:\n  activation_deg: -5\n",
			want: "board.activation_deg must be > 0",
		},
		{
			name: "NegativeSamples",
			body: "board:\n  smoothing_samples: -2\n",
			want: "board.smoothing_samples must be >= 1",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, c.body))
			requireErrEq(t, err, c.want)
		})
	}
}

func TestLoad_BadCharacteristic(t *testing.T) {
	_, err := Load(writeTempConfig(t, "board:\n  characteristic: abc\n"))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../board.example.yaml")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Telemetry.Listen != ":8080" || cfg.Board.ResolveTimeout != 15*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
}
