package remote

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chzchzchz/specan/store"
)

type doneToken struct{ err error }

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakePublisher struct {
	topic   string
	payload []byte
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic, p.payload = topic, payload.([]byte)
	return &doneToken{}
}

func TestMirrorPublish(t *testing.T) {
	fp := &fakePublisher{}
	m := newMirror(fp, MQTTConfig{Topic: "lab"}, "room1")
	rec := &store.SweepRecord{Room: "room1", Antennas: []string{"RX2", "TX/RX"}}
	if err := m.Publish(rec); err != nil {
		t.Fatal(err)
	}
	if fp.topic != "lab/room1/sweep" {
		t.Fatalf("unexpected topic %q", fp.topic)
	}
	var got store.SweepRecord
	if err := json.Unmarshal(fp.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.Room != "room1" || len(got.Antennas) != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if newMirror(fp, MQTTConfig{}, "r").Topic() != "specan/r/sweep" {
		t.Fatal("unexpected default topic")
	}
}
