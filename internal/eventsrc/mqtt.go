package eventsrc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
)

// Route maps an MQTT topic onto a custom event.
type Route struct {
	Topic string
	Event string
	QoS   byte
}

// MQTTOptions configures an MQTTSource.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Routes   []Route

	// Timeout bounds connect and subscribe. Default: 10s.
	Timeout time.Duration
}

// mqttClient is the part of paho.Client the source uses.
type mqttClient interface {
	Connect() paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	Disconnect(quiesce uint)
}

// MQTTSource fires a custom event for every message on a routed topic.
// The payload is a JSON object whose fields become event parameters.
type MQTTSource struct {
	client  mqttClient
	routes  []Route
	timeout time.Duration

	mu      sync.Mutex
	started bool
}

// NewMQTTSource creates a source with a paho client. It does not
// connect until Start.
func NewMQTTSource(opts MQTTOptions) (*MQTTSource, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "ixgraph"
	}
	popts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)
	return newMQTTSource(paho.NewClient(popts), opts.Routes, opts.Timeout)
}

func newMQTTSource(c mqttClient, routes []Route, timeout time.Duration) (*MQTTSource, error) {
	for i, r := range routes {
		if r.Topic == "" || r.Event == "" {
			return nil, fmt.Errorf("mqtt: route %d needs a topic and an event", i)
		}
		if r.QoS > 2 {
			return nil, fmt.Errorf("mqtt: route %d: qos %d out of range", i, r.QoS)
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTSource{client: c, routes: routes, timeout: timeout}, nil
}

func (m *MQTTSource) Start(ctx context.Context, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("mqtt: source already started")
	}

	if err := wait(m.client.Connect(), m.timeout, "connect"); err != nil {
		return err
	}
	for _, r := range m.routes {
		if err := wait(m.client.Subscribe(r.Topic, r.QoS, m.handler(r, sink)), m.timeout, "subscribe "+r.Topic); err != nil {
			m.client.Disconnect(250)
			return err
		}
	}
	m.started = true
	slog.Info("mqtt source started", "routes", len(m.routes))

	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()
	return nil
}

func wait(t paho.Token, timeout time.Duration, what string) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: %s timed out after %s", what, timeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt: %s: %w", what, err)
	}
	return nil
}

func (m *MQTTSource) handler(r Route, sink Sink) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		params, err := DecodePayload(msg.Payload())
		if err != nil {
			slog.Warn("mqtt message dropped",
				"topic", msg.Topic(),
				"event", r.Event,
				"error", err,
			)
			return
		}
		if !sink.Enqueue(engine.Event{Kind: engine.EventFire, CustomEvent: r.Event, Params: params}) {
			slog.Warn("mqtt message dropped: sink closed", "topic", msg.Topic(), "event", r.Event)
			return
		}
		slog.Debug("mqtt event enqueued", "topic", msg.Topic(), "event", r.Event)
	}
}

// Stop unsubscribes and disconnects.
func (m *MQTTSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false

	topics := make([]string, len(m.routes))
	for i, r := range m.routes {
		topics[i] = r.Topic
	}
	var err error
	if len(topics) > 0 {
		err = wait(m.client.Unsubscribe(topics...), m.timeout, "unsubscribe")
	}
	m.client.Disconnect(250)
	return err
}

// DecodePayload turns a JSON object into event parameters.
//
// Booleans, strings and numbers map to bool, string, and int or float
// (by whether the literal has a fraction or exponent). Arrays of two to
// four numbers map to float2..float4. An empty payload has no
// parameters; the engine fills declared defaults.
func DecodePayload(payload []byte) (map[string]ir.Value, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	out := make(map[string]ir.Value, len(raw))
	for name, v := range raw {
		val, err := jsonValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

func jsonValue(v any) (ir.Value, error) {
	switch t := v.(type) {
	case bool:
		return ir.Bool(t), nil
	case string:
		return ir.String(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return ir.Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return ir.Float(f), nil
	case []any:
		fs := make([]float64, len(t))
		for k, c := range t {
			n, ok := c.(json.Number)
			if !ok {
				return nil, fmt.Errorf("array element %d is not a number", k)
			}
			f, err := n.Float64()
			if err != nil {
				return nil, err
			}
			fs[k] = f
		}
		sig, ok := vectorSigs[len(fs)]
		if !ok {
			return nil, fmt.Errorf("arrays of %d numbers are not supported", len(fs))
		}
		return ir.FloatsToValue(sig, fs)
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}

var vectorSigs = map[int]string{2: ir.SigFloat2, 3: ir.SigFloat3, 4: ir.SigFloat4}
