package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"balance-board/board"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(completed bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if completed {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic    string
	retained bool
	payload  []byte
	token    *fakeToken
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.retained = retained
	f.payload, _ = payload.([]byte)
	return f.token
}

func TestPublisher_Publish(t *testing.T) {
	fp := &fakePublisher{token: newFakeToken(true, nil)}
	p := &Publisher{client: fp, topic: "balanceboard/direction"}

	frame := Frame{Snapshot: board.Snapshot{Direction: board.Left, Roll: -7}, TS: 42}
	if err := p.Publish(frame); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if fp.topic != "balanceboard/direction" || !fp.retained {
		t.Fatalf("topic=%q retained=%v", fp.topic, fp.retained)
	}

	var got map[string]any
	if err := json.Unmarshal(fp.payload, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got["direction"] != "Left" || got["ts"] != float64(42) {
		t.Fatalf("payload=%s", fp.payload)
	}

	p.Close() // no broker connection; must not panic
}

func TestPublisher_PublishError(t *testing.T) {
	want := errors.New("not authorized")
	p := &Publisher{client: &fakePublisher{token: newFakeToken(true, want)}, topic: "t"}
	if err := p.Publish(Frame{}); !errors.Is(err, want) {
		t.Fatalf("err=%v want %v", err, want)
	}
}
