// Package ingest accepts location fixes from device telemetry over MQTT.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"logistrans/internal/config"
	"logistrans/internal/model"
)

// Recorder is the tracking service as seen by the subscriber.
type Recorder interface {
	Record(ctx context.Context, source string, req model.UpdateLocationRequest) (model.Location, error)
}

// Subscriber feeds messages from an MQTT topic into a Recorder.
type Subscriber struct {
	cfg    config.MQTTConfig
	rec    Recorder
	logger *slog.Logger
	client mqtt.Client
	ctx    context.Context
}

func NewSubscriber(cfg config.MQTTConfig, rec Recorder, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{cfg: cfg, rec: rec, logger: logger.With("component", "mqtt", "topic", cfg.Topic), ctx: context.Background()}
}

// Start connects and subscribes. The subscription is renewed on every
// reconnect. ctx bounds the Record calls made for incoming messages.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		tok := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
			s.handle(m.Topic(), m.Payload())
		})
		if tok.Wait() && tok.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "err", tok.Error())
			return
		}
		s.logger.Info("mqtt subscribed", "broker", s.cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "err", err)
	})

	s.client = mqtt.NewClient(opts)
	tok := s.client.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return errors.New("mqtt connect timed out")
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Stop disconnects, giving in-flight work a moment to finish.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) handle(topic string, payload []byte) {
	var req model.UpdateLocationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Warn("dropping undecodable location", "mqtt_topic", topic, "err", err)
		return
	}
	if _, err := s.rec.Record(s.ctx, "mqtt", req); err != nil {
		s.logger.Warn("dropping location", "mqtt_topic", topic, "route_id", req.RouteID, "err", err)
	}
}
