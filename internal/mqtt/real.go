package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfellner/revcounter/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	bufferCapacity = 256
)

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the broker is unreachable are kept in a ring
// buffer and replayed on (re)connect.
type RealPublisher struct {
	client      paho.Client
	topicEvents string
	topicSystem string
	log         zerolog.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker.
// An unreachable broker is not an error: paho keeps retrying in the
// background and messages are buffered meanwhile.
func NewRealPublisher(broker, clientID string, log zerolog.Logger) (*RealPublisher, error) {
	if broker == "" {
		return nil, errors.New("no broker configured")
	}
	if clientID == "" {
		clientID = DefaultClientID
	}

	p := newPublisher(clientID, log)
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topicSystem, string(WillPayload(time.Now())), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn().Str("broker", broker).Msg("broker not reachable yet, buffering messages")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connect to broker %s", broker)
	}
	return p, nil
}

func newPublisher(clientID string, log zerolog.Logger) *RealPublisher {
	return &RealPublisher{
		topicEvents: TopicEvents(clientID),
		topicSystem: TopicSystem(clientID),
		log:         log.With().Str("component", "mqtt").Logger(),
		buf:         newRingBuffer(bufferCapacity),
	}
}

// onConnect replays buffered messages.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Info().Int("buffered", len(msgs)).Msg("connected")
	for _, m := range msgs {
		// Don't wait for completion in the paho callback goroutine
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a transition event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.TransitionEvent, rate logic.RateSnapshot) error {
	payload, err := FormatPayload(event, rate)
	if err != nil {
		return errors.Wrap(err, "format payload")
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topicEvents, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Wrap(err, "format system payload")
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: p.topicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.buf.push(m)
		p.mu.Unlock()
		if dropped {
			p.log.Warn().Int("capacity", bufferCapacity).Msg("buffer full, dropping oldest")
		}
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if m.qos == 0 {
		// Called from the sampling loop: never wait for the broker
		go p.logFailure(m.topic, token)
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s: timeout", m.topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", m.topic)
}

func (p *RealPublisher) logFailure(topic string, token paho.Token) {
	<-token.Done()
	if err := token.Error(); err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		p.log.Warn().Int("buffered", n).Msg("closing with undelivered messages")
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
