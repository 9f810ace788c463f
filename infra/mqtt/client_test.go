package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/obsched/core/runlog"
)

// generateCert writes a self-signed certificate, its key and a CA bundle.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts        *paho.ClientOptions
	subscribed  map[string]byte
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	if m.subscribed == nil {
		m.subscribed = map[string]byte{}
	}
	m.subscribed[topic] = qos
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = orig })
}

func sampleRecord() runlog.RunRecord {
	return runlog.RunRecord{
		RunID:  "run-42",
		Status: "optimal",
		Proven: true,
		Score:  52.4,
		Grid:   runlog.GridInfo{SlotLength: 5 * time.Minute, SlotsPerResource: 6, Resources: []string{"GN", "GS"}},
		Starts: []runlog.StartEntry{
			{Observation: "m31", Resource: "GN", Slot: 2, Slots: 2, Priority: 36.6, Quality: 1},
			{Observation: "vega", Resource: "GS", Slot: 9, Slots: 1, Priority: 15.8, Quality: 1},
		},
		Unscheduled: []string{"deneb"},
	}
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptions(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, strings.HasPrefix(opts.ClientID, "obsched-"))

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "fixed", LWTTopic: "obsched/status", LWTPayload: "offline", LWTQoS: 1})
	require.NoError(t, err)
	assert.Equal(t, "fixed", opts.ClientID)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "offline", string(opts.WillPayload))
}

func TestPublishRun(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", TopicPrefix: "site/", QoS: map[string]byte{"plan": 1, "start": 2, "ack": 1}})
	require.NoError(t, err)
	assert.Equal(t, byte(1), mc.subscribed["site/ack"])

	runID, err := pub.PublishRun(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)

	require.Len(t, mc.published, 3)
	plan := mc.published[0]
	assert.Equal(t, "site/plan", plan.topic)
	assert.True(t, plan.retained)
	assert.Equal(t, byte(1), plan.qos)
	var msg PlanMessage
	require.NoError(t, json.Unmarshal(plan.payload, &msg))
	assert.Equal(t, 300.0, msg.SlotSeconds)
	assert.Equal(t, []string{"deneb"}, msg.Unscheduled)
	require.Len(t, msg.Starts, 2)

	assert.Equal(t, "site/gn/start", mc.published[1].topic)
	assert.Equal(t, "site/gs/start", mc.published[2].topic)
	assert.Equal(t, byte(2), mc.published[2].qos)
	var st StartMessage
	require.NoError(t, json.Unmarshal(mc.published[2].payload, &st))
	assert.Equal(t, 3, st.Offset)
	assert.Equal(t, 900.0, st.StartSecond)
	assert.Equal(t, "vega", st.Observation)
}

func TestAckRoundTrip(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	assert.Contains(t, mc.subscribed, "obsched/ack")

	runID, err := pub.PublishRun(sampleRecord())
	require.NoError(t, err)
	pub.onAck(nil, mockMessage{[]byte(`{"run_id":"run-42"}`)})
	ok, err := pub.WaitForAck(runID, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = pub.WaitForAck(runID, time.Millisecond)
	assert.Error(t, err, "ack channel is released after the wait")
}

func TestWaitForAckTimeout(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)
	runID, err := pub.PublishRun(sampleRecord())
	require.NoError(t, err)
	ok, err := pub.WaitForAck(runID, time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAckTimeout)
}

func TestPublishRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	rec := sampleRecord()
	rec.Starts = nil
	_, err = pub.PublishRun(rec)
	require.NoError(t, err)
	assert.Len(t, mc.published, 2)

	mc.publishErrs = []error{errors.New("down"), errors.New("down")}
	_, err = pub.PublishRun(rec)
	assert.EqualError(t, err, "down")
	pub.Disconnect()
}
