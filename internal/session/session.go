// Package session implements the Message-Bus Session Manager (C3): the
// mTLS-authenticated broker connection, its connect/disconnect edge
// callbacks, and the reconnect/watchdog/link-health machinery around it.
//
// The connection lifecycle (init/connect/disconnect/deinit, edge-triggered
// callbacks) is grounded on this codebase's domains/grpc client connection
// handling and sync/peer.go's symmetric session abstraction; the manual
// exponential-backoff reconnect loop is grounded on pulse/async/worker.go's
// errorCount/backoffDuration pattern.
package session

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/corerrors"
)

// ConnectionCallback is fired exactly on edges: connected transitioning
// false->true or true->false. It receives the new state (spec §4.3).
type ConnectionCallback func(connected bool)

// ResponseHandler is invoked for every inbound message on the response
// topic. Grounded on the Design Notes' "break the cyclic reference by
// making the correlator a subscriber to a response-received event" —
// Session never imports the correlator; it just calls this function.
type ResponseHandler func(payload []byte)

// CommandHandler is invoked for inbound command-topic messages.
type CommandHandler func(topic string, payload []byte)

// Session owns one broker connection.
type Session struct {
	topicPrefix string

	client mqtt.Client

	connected atomic.Bool
	ready     atomic.Bool
	authFails atomic.Int32

	onConnection ConnectionCallback
	onResponse   ResponseHandler
	onCommand    CommandHandler

	playerKey string
}

// New constructs a Session that is not yet initialized.
func New(topicPrefix string, onConnection ConnectionCallback, onResponse ResponseHandler, onCommand CommandHandler) *Session {
	return &Session{topicPrefix: topicPrefix, onConnection: onConnection, onResponse: onResponse, onCommand: onCommand}
}

// Init prepares the client for connect() (spec §4.3). Safe to call again
// after Deinit.
func (s *Session) Init(playerKey, host string, port uint16, ca, cert, key []byte) error {
	tlsConfig, err := buildTLSConfig(ca, cert, key)
	if err != nil {
		return corerrors.Wrap(err, "building TLS config")
	}

	s.playerKey = playerKey

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tls://%s:%d", host, port))
	opts.SetClientID(playerKey)
	opts.SetTLSConfig(tlsConfig)
	opts.SetAutoReconnect(false) // reconnection is owned by our own loop, spec §4.3
	opts.SetCleanSession(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.authFails.Store(0)
		s.handleConnectionEdge(true)
		s.subscribeAll()
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		s.ready.Store(false)
		s.handleConnectionEdge(false)
	})

	s.client = mqtt.NewClient(opts)
	return nil
}

func buildTLSConfig(ca, cert, key []byte) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, corerrors.New("failed to parse CA chain")
	}
	pair, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return nil, corerrors.Wrap(err, "parsing client certificate/key pair")
	}
	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (s *Session) handleConnectionEdge(connected bool) {
	prior := s.connected.Swap(connected)
	if prior == connected {
		return // not an edge; spec requires callbacks only on transitions
	}
	if s.onConnection != nil {
		s.onConnection(connected)
	}
}

func (s *Session) subscribeAll() {
	log := corelog.For("session")
	responseTopic := fmt.Sprintf("%s/player/%s/response/#", s.topicPrefix, s.playerKey)
	commandTopic := fmt.Sprintf("%s/player/%s/command/#", s.topicPrefix, s.playerKey)

	token := s.client.Subscribe(responseTopic, 1, func(c mqtt.Client, m mqtt.Message) {
		if s.onResponse != nil {
			s.onResponse(m.Payload())
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Errorw("subscribe to response topic failed", "error", token.Error())
		return
	}
	s.ready.Store(true)

	token = s.client.Subscribe(commandTopic, 1, func(c mqtt.Client, m mqtt.Message) {
		if s.onCommand != nil {
			s.onCommand(m.Topic(), m.Payload())
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Warnw("subscribe to command topic failed", "error", token.Error())
	}
}

// Connect initiates the session asynchronously. A TLS handshake rejection
// increments the auth-failure counter (spec §4.3).
func (s *Session) Connect() error {
	if s.client == nil {
		return corerrors.New("session not initialized")
	}
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		if isAuthError(err) {
			s.authFails.Inc()
		}
		return corerrors.Wrap(err, "connect failed")
	}
	return nil
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*tls.CertificateVerificationError)
	return ok
}

// AuthFailureCount returns the monotonic-while-disconnected counter.
func (s *Session) AuthFailureCount() int32 { return s.authFails.Load() }

// Disconnect tears down the session and, if it was connected, fires the
// true->false edge callback.
func (s *Session) Disconnect() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.ready.Store(false)
	s.handleConnectionEdge(false)
}

// Deinit releases resources so a subsequent Init is safe.
func (s *Session) Deinit() {
	s.Disconnect()
	s.client = nil
}

// PlayerKey returns the identity this session was last Init'd with, or
// empty before the first Init.
func (s *Session) PlayerKey() string { return s.playerKey }

// IsConnected reports TCP+TLS handshake completion.
func (s *Session) IsConnected() bool { return s.connected.Load() }

// IsReady additionally requires subscription acknowledgment for the
// response prefix (spec §4.3, Glossary "Readiness").
func (s *Session) IsReady() bool { return s.connected.Load() && s.ready.Load() }

// PublishRequest publishes payload to the per-request correlation topic at
// QoS 1.
func (s *Session) PublishRequest(correlationID string, payload []byte) error {
	if !s.IsConnected() {
		return corerrors.ErrNotConnected
	}
	topic := fmt.Sprintf("%s/player/%s/request/%s", s.topicPrefix, s.playerKey, correlationID)
	token := s.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return corerrors.Mark(corerrors.Wrap(err, "publishing request"), corerrors.ErrPublishFailed)
	}
	return nil
}

// PublishStatus publishes to the status heartbeat topic.
func (s *Session) PublishStatus(status any) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return corerrors.Wrap(err, "encoding status payload")
	}
	topic := fmt.Sprintf("%s/player/%s/status", s.topicPrefix, s.playerKey)
	token := s.client.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

// PublishView publishes a view-telemetry event.
func (s *Session) PublishView(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return corerrors.Wrap(err, "encoding view event")
	}
	topic := fmt.Sprintf("%s/player/%s/view", s.topicPrefix, s.playerKey)
	token := s.client.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}
