package remote

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/chzchzchz/specan/store"
)

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Topic prefix; sweeps go to <prefix>/<room>/sweep.
	Topic  string `yaml:"topic"`
	QoS    byte   `yaml:"qos"`
	Retain bool   `yaml:"retain"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Mirror publishes a summary of every sweep to an MQTT broker.
type Mirror struct {
	client publisher
	cfg    MQTTConfig
	topic  string
}

func NewMirror(cfg MQTTConfig, room string) (*Mirror, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("specan_" + uuid.NewString())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[WARN] mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Printf("[INFO] mqtt mirroring sweeps to %s", cfg.Broker)
	return newMirror(client, cfg, room), nil
}

func newMirror(p publisher, cfg MQTTConfig, room string) *Mirror {
	prefix := cfg.Topic
	if prefix == "" {
		prefix = "specan"
	}
	return &Mirror{client: p, cfg: cfg, topic: prefix + "/" + room + "/sweep"}
}

func (m *Mirror) Topic() string { return m.topic }

func (m *Mirror) Publish(rec *store.SweepRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, m.cfg.QoS, m.cfg.Retain, b)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish to %s timed out", m.topic)
	}
	return token.Error()
}

func (m *Mirror) Close() {
	if c, ok := m.client.(mqtt.Client); ok && c.IsConnected() {
		c.Disconnect(250)
	}
}
