package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/logger"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

const (
	contentTypeJSON = "application/json"
	qosAtLeastOnce  = 1

	mqttSourceBuffer   = 256
	unsubscribeTimeout = 2 * time.Second
)

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	KeepAlive      uint16        `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	InputTopic     string        `mapstructure:"input_topic"`
	OutputTopic    string        `mapstructure:"output_topic"`
	// RejectTopic, when set, receives rejected readings.
	RejectTopic string `mapstructure:"reject_topic"`
}

func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         "localhost:1883",
		KeepAlive:      30,
		ConnectTimeout: 10 * time.Second,
		InputTopic:     "sensors/temperature/raw",
		OutputTopic:    "sensors/temperature/filtered",
	}
}

func (c MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errFactory.WithMessage(errors.ErrInvalidTransport, "mqtt broker address is required")
	}
	if _, _, err := net.SplitHostPort(c.Broker); err != nil {
		return errFactory.Wrap(errors.ErrInvalidTransport, err)
	}
	if c.InputTopic == "" || c.OutputTopic == "" {
		return errFactory.WithMessage(errors.ErrInvalidTransport, "mqtt input and output topics are required")
	}
	if strings.ContainsAny(c.OutputTopic, "+#") || strings.ContainsAny(c.RejectTopic, "+#") {
		return errFactory.WithMessage(errors.ErrInvalidTransport, "mqtt publish topics must not contain wildcards")
	}
	if c.ConnectTimeout <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidTransport, "mqtt connect timeout must be positive")
	}

	return nil
}

// MQTT is a connected broker session. Sources and sinks created from it
// share the connection.
type MQTT struct {
	client *paho.Client
	log    logger.Logger

	mu      sync.RWMutex
	sources []*mqttSource
	err     error
	closed  bool
}

// DialMQTT connects to the broker in cfg. A random client id is used when
// none is configured.
func DialMQTT(ctx context.Context, cfg MQTTConfig, log logger.Logger) (*MQTT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "datafilter-" + uuid.NewString()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", cfg.Broker)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrConnect, err)
	}

	m := &MQTT{log: log}
	m.client = paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			m.route,
		},
		OnClientError: func(err error) {
			m.fail(errFactory.Wrap(errors.ErrSourceClose, err))
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.fail(errFactory.WithMessage(errors.ErrSourceClose,
				fmt.Sprintf("broker disconnected (reason code %d)", d.ReasonCode)))
		},
	})

	connect := &paho.Connect{
		ClientID:   clientID,
		CleanStart: true,
		KeepAlive:  cfg.KeepAlive,
	}
	if cfg.Username != "" {
		connect.Username = cfg.Username
		connect.UsernameFlag = true
	}
	if cfg.Password != "" {
		connect.Password = []byte(cfg.Password)
		connect.PasswordFlag = true
	}

	ack, err := m.client.Connect(dialCtx, connect)
	if err != nil {
		conn.Close()
		return nil, errFactory.Wrap(errors.ErrConnect, err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return nil, errFactory.WithMessage(errors.ErrConnect,
			fmt.Sprintf("connack reason code %d", ack.ReasonCode))
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("client_id", clientID).
		Msg("Connected to MQTT broker")

	return m, nil
}

// Source subscribes to topic, which may contain wildcards.
func (m *MQTT) Source(ctx context.Context, topic string) (Source, error) {
	s := &mqttSource{
		mqtt:   m,
		filter: topic,
		ch:     make(chan []byte, mqttSourceBuffer),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if m.err != nil || m.closed {
		err := m.err
		m.mu.Unlock()
		if err == nil {
			err = errFactory.New(errors.ErrSourceClose)
		}
		return nil, err
	}
	m.sources = append(m.sources, s)
	m.mu.Unlock()

	_, err := m.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: topic,
			QoS:   qosAtLeastOnce,
		}},
	})
	if err != nil {
		m.remove(s)
		s.shutdown(nil)
		return nil, errFactory.Wrap(errors.ErrSubscribe, err)
	}

	m.log.Debug().Str("topic", topic).Msg("Subscribed")

	return s, nil
}

// Sink publishes to topic at QoS 1. props are sent as MQTT user properties
// on every message.
func (m *MQTT) Sink(topic string, props map[string]string) Sink {
	user := make(paho.UserProperties, 0, len(props))
	for k, v := range props {
		user = append(user, paho.UserProperty{Key: k, Value: v})
	}

	return &mqttSink{client: m.client, topic: topic, user: user}
}

// Err returns the error that ended the session, if any.
func (m *MQTT) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Close disconnects from the broker and closes every source.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sources := m.sources
	m.sources = nil
	failed := m.err != nil
	m.mu.Unlock()

	for _, s := range sources {
		s.shutdown(nil)
	}

	if failed {
		return nil
	}
	if err := m.client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	m.log.Debug().Msg("Disconnected from MQTT broker")
	return nil
}

func (m *MQTT) route(pr paho.PublishReceived) (bool, error) {
	m.mu.RLock()
	sources := append([]*mqttSource(nil), m.sources...)
	m.mu.RUnlock()

	for _, s := range sources {
		if topicMatches(s.filter, pr.Packet.Topic) {
			s.deliver(pr.Packet.Payload)
		}
	}

	return true, nil
}

func (m *MQTT) fail(err error) {
	m.mu.Lock()
	if m.err != nil || m.closed {
		m.mu.Unlock()
		return
	}
	m.err = err
	sources := m.sources
	m.sources = nil
	m.mu.Unlock()

	m.log.Error().Err(err).Msg("MQTT session lost")

	for _, s := range sources {
		s.shutdown(err)
	}
}

func (m *MQTT) remove(s *mqttSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, other := range m.sources {
		if other == s {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			return
		}
	}
}

type mqttSource struct {
	mqtt   *MQTT
	filter string
	ch     chan []byte
	done   chan struct{}

	once   sync.Once
	mu     sync.RWMutex
	closed bool
	err    error
}

// deliver blocks while the buffer is full, which holds back the broker's
// acknowledgement.
func (s *mqttSource) deliver(payload []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- payload:
	case <-s.done:
	}
}

func (s *mqttSource) shutdown(err error) {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		s.err = err
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *mqttSource) Messages() <-chan []byte {
	return s.ch
}

func (s *mqttSource) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *mqttSource) Close() error {
	s.mqtt.remove(s)
	s.shutdown(nil)

	if s.mqtt.Err() != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()

	if _, err := s.mqtt.client.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{s.filter}}); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}

type mqttSink struct {
	client *paho.Client
	topic  string
	user   paho.UserProperties
}

func (s *mqttSink) Send(ctx context.Context, payload []byte) error {
	_, err := s.client.Publish(ctx, &paho.Publish{
		QoS:     qosAtLeastOnce,
		Topic:   s.topic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: contentTypeJSON,
			User:        s.user,
		},
	})
	if err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	return nil
}

// Close is a no-op; the connection belongs to the MQTT session.
func (*mqttSink) Close() error {
	return nil
}

// topicMatches reports whether topic matches the subscription filter,
// honouring the + and # wildcards.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}

	return len(fp) == len(tp)
}
