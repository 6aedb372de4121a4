package channel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/skordaschristofanis/instrumentdb/internal/infrastructure/config"
)

// MQTT transport constants.
const (
	// connectTimeout is the timeout for the initial broker connection.
	connectTimeout = 10 * time.Second

	// publishTimeout is the timeout for a single publish to the broker.
	publishTimeout = 5 * time.Second

	// connPollInterval is the cadence of WaitForConnection checks.
	connPollInterval = 25 * time.Millisecond
)

// MQTTProvider dials channel handles over an MQTT channel-access gateway.
//
// The gateway bridges control-system channels onto three topic families
// under a configurable prefix:
//
//	<prefix>/state/<name>  retained JSON connection/record metadata
//	<prefix>/put/<name>    write requests published by this provider
//	<prefix>/ack/<name>    completion acknowledgements for writes
//
// Each dialed channel subscribes to its state and ack topics; the retained
// state message makes connection status available immediately after
// subscribing.
//
// Thread Safety: all methods are safe for concurrent use.
type MQTTProvider struct {
	client pahomqtt.Client
	prefix string
	qos    byte

	conns map[string]*mqttConn
	mu    sync.Mutex

	logger Logger
}

// stateMessage is the retained per-channel metadata published by the gateway.
type stateMessage struct {
	Connected  bool   `json:"connected"`
	RecordType string `json:"record_type"`
	ValueType  string `json:"value_type"`
	Count      int    `json:"count"`
	Field      string `json:"field"`
}

// putMessage is a write request published to the gateway.
type putMessage struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// ackMessage is a completion acknowledgement from the gateway.
type ackMessage struct {
	ID string `json:"id"`
}

// ConnectMQTT connects to the broker and returns a channel provider.
//
// A missing client ID is replaced with a generated one so that several
// daemons can share a broker without stealing each other's sessions.
func ConnectMQTT(cfg config.MQTTConfig, logger Logger) (*MQTTProvider, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "instrumentdb-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p := &MQTTProvider{
		prefix: cfg.TopicPrefix,
		qos:    byte(cfg.QoS),
		conns:  make(map[string]*mqttConn),
		logger: logger,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		p.resubscribeAll()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", "error", err)
		p.markAllDisconnected()
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: broker connect timeout after %v", ErrNotConnected, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	return p, nil
}

// Dial subscribes to the channel's state and ack topics and returns its
// handle. The connection state arrives asynchronously via the retained
// state message.
func (p *MQTTProvider) Dial(name string) (Conn, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[name]; ok {
		return conn, nil
	}

	conn := &mqttConn{name: name, provider: p, putComplete: true}
	if err := p.subscribe(conn); err != nil {
		return nil, err
	}
	p.conns[name] = conn
	return conn, nil
}

// Close disconnects from the broker.
func (p *MQTTProvider) Close() {
	const quiesceMillis = 250
	p.client.Disconnect(quiesceMillis)
}

// subscribe registers the state and ack handlers for one channel.
// Caller holds p.mu.
func (p *MQTTProvider) subscribe(conn *mqttConn) error {
	stateTopic := fmt.Sprintf("%s/state/%s", p.prefix, conn.name)
	ackTopic := fmt.Sprintf("%s/ack/%s", p.prefix, conn.name)

	stateToken := p.client.Subscribe(stateTopic, p.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		conn.handleState(msg.Payload())
	})
	if !stateToken.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribing %s: timeout after %v", stateTopic, publishTimeout)
	}
	if err := stateToken.Error(); err != nil {
		return fmt.Errorf("subscribing %s: %w", stateTopic, err)
	}

	ackToken := p.client.Subscribe(ackTopic, p.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		conn.handleAck(msg.Payload())
	})
	if !ackToken.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribing %s: timeout after %v", ackTopic, publishTimeout)
	}
	if err := ackToken.Error(); err != nil {
		return fmt.Errorf("subscribing %s: %w", ackTopic, err)
	}

	return nil
}

// resubscribeAll re-registers every channel subscription after a
// reconnect, since the broker may have dropped the session.
func (p *MQTTProvider) resubscribeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.conns {
		if err := p.subscribe(conn); err != nil {
			p.logger.Error("resubscribe failed", "channel", conn.name, "error", err)
		}
	}
}

// markAllDisconnected flags every handle as disconnected after the broker
// link drops; retained state messages restore the flags on reconnect.
func (p *MQTTProvider) markAllDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.conns {
		conn.setConnected(false)
	}
}

// publishPut sends a write request for a channel.
func (p *MQTTProvider) publishPut(name string, msg putMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encoding put: %w", ErrPutFailed, err)
	}

	topic := fmt.Sprintf("%s/put/%s", p.prefix, name)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: publish timeout after %v", ErrPutFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPutFailed, err)
	}
	return nil
}

// mqttConn is the Conn implementation over an MQTT gateway.
type mqttConn struct {
	name     string
	provider *MQTTProvider

	mu          sync.Mutex
	connected   bool
	kind        RecordKind
	pendingID   string
	putComplete bool
}

// Name returns the normalized channel name.
func (c *mqttConn) Name() string { return c.name }

// Connected reports whether the gateway last announced this channel as
// connected.
func (c *mqttConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitForConnection polls the connection flag until it is set or the
// timeout elapses.
func (c *mqttConn) WaitForConnection(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.Connected() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(connPollInterval)
	}
}

// Put issues a non-blocking write. The gateway acknowledges completion on
// the ack topic, which flips PutComplete.
func (c *mqttConn) Put(value string) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	id := uuid.NewString()
	c.mu.Lock()
	c.pendingID = id
	c.putComplete = false
	c.mu.Unlock()

	if err := c.provider.publishPut(c.name, putMessage{ID: id, Value: value}); err != nil {
		// The write never left: clear the pending state so a failed put
		// does not leave the handle permanently incomplete.
		c.mu.Lock()
		c.pendingID = ""
		c.putComplete = true
		c.mu.Unlock()
		return err
	}
	return nil
}

// PutComplete reports whether the most recent Put has been acknowledged.
func (c *mqttConn) PutComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putComplete
}

// Kind returns the record classification from the gateway's state
// metadata, or KindOther before any state message arrived.
func (c *mqttConn) Kind() RecordKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// handleState applies a retained state message from the gateway.
func (c *mqttConn) handleState(payload []byte) {
	var msg stateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.provider.logger.Warn("bad state payload", "channel", c.name, "error", err)
		return
	}

	c.mu.Lock()
	c.connected = msg.Connected
	if msg.RecordType != "" || msg.ValueType != "" {
		c.kind = KindFromRecord(msg.RecordType, msg.Field, msg.ValueType, msg.Count)
	}
	c.mu.Unlock()
}

// handleAck applies a completion acknowledgement. Acks for stale put IDs
// are ignored.
func (c *mqttConn) handleAck(payload []byte) {
	var msg ackMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.provider.logger.Warn("bad ack payload", "channel", c.name, "error", err)
		return
	}

	c.mu.Lock()
	if msg.ID == c.pendingID && c.pendingID != "" {
		c.putComplete = true
		c.pendingID = ""
	}
	c.mu.Unlock()
}

// setConnected updates the connection flag.
func (c *mqttConn) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}
