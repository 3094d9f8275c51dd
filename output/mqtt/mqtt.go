// Package mqtt publishes calibrated readings as JSON to an MQTT broker
// (the telemetry downlink).
package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/strainrig/gauged/config"
	"github.com/strainrig/gauged/output"
)

const defaultTopic = "gauged/readings"

type MQTTOutput struct {
	client mqtt.Client
	topic  string
}

// New connects to the configured broker. Connecting eagerly surfaces
// broker misconfiguration at startup instead of on the first reading.
func New(cfg config.MQTTConfig) (*MQTTOutput, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
	}
	return &MQTTOutput{client: client, topic: topic}, nil
}

func (m *MQTTOutput) Publish(r output.Reading) error {
	payload, err := encode(r)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

// encode renders a reading as the JSON telemetry document: timestamp
// plus the raw and calibrated vectors in channel order.
func encode(r output.Reading) ([]byte, error) {
	return json.Marshal(r)
}

func (m *MQTTOutput) Close() error {
	m.client.Disconnect(250)
	return nil
}
