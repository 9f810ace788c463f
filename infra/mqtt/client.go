package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/obsched/core/runlog"
	"github.com/kilianp07/obsched/infra/logger"
)

// ErrAckTimeout is returned when a site does not acknowledge a plan in time.
var ErrAckTimeout = errors.New("plan acknowledgment timeout")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	AckTopic    string          `json:"ack_topic"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	QoS         map[string]byte `json:"qos"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PlanMessage is the retained message describing a whole plan.
type PlanMessage struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	Proven      bool           `json:"proven"`
	Score       float64        `json:"score"`
	SlotSeconds float64        `json:"slot_seconds"`
	Starts      []StartMessage `json:"starts"`
	Unscheduled []string       `json:"unscheduled"`
	Timestamp   int64          `json:"timestamp"`
}

// StartMessage tells one site when to begin an observation.
type StartMessage struct {
	RunID       string  `json:"run_id"`
	Observation string  `json:"observation"`
	Resource    string  `json:"resource"`
	Offset      int     `json:"offset"`
	Slots       int     `json:"slots"`
	StartSecond float64 `json:"start_second"`
	Priority    float64 `json:"priority"`
}

// Publisher sends plans to the sites over MQTT and tracks their acknowledgments.
type Publisher struct {
	cli      pahoClient
	prefix   string
	ackTopic string
	qos      map[string]byte

	mu         sync.Mutex
	ackChans   map[string]chan struct{}
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPublisher connects to the broker and subscribes to the ack topic.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "obsched"
	}
	ackTopic := cfg.AckTopic
	if ackTopic == "" {
		ackTopic = prefix + "/ack"
	}
	log := logger.New("mqtt_publisher")
	p := &Publisher{
		prefix:     prefix,
		ackTopic:   ackTopic,
		qos:        cfg.QoS,
		ackChans:   make(map[string]chan struct{}),
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(p.ackTopic, p.qosFor("ack"), p.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config. A missing client
// id is replaced by a random one.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	id := cfg.ClientID
	if id == "" {
		id = "obsched-" + uuid.NewString()
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(id)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *Publisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *Publisher) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	if ch, ok := p.ackChans[m.RunID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Infof("received ack for run %s", m.RunID)
	}
	p.mu.Unlock()
}

// PlanTopic is the retained topic carrying the latest plan.
func (p *Publisher) PlanTopic() string { return p.prefix + "/plan" }

// StartTopic is the topic of start orders for one resource.
func (p *Publisher) StartTopic(resource string) string {
	return fmt.Sprintf("%s/%s/start", p.prefix, strings.ToLower(resource))
}

// PublishRun publishes the plan of rec as a retained message and one start
// order per scheduled observation. It returns the run id used for
// acknowledgment tracking.
func (p *Publisher) PublishRun(rec runlog.RunRecord) (string, error) {
	slot := rec.Grid.SlotLength
	msg := PlanMessage{
		RunID:       rec.RunID,
		Status:      rec.Status,
		Proven:      rec.Proven,
		Score:       rec.Score,
		SlotSeconds: slot.Seconds(),
		Unscheduled: rec.Unscheduled,
		Timestamp:   time.Now().UnixMilli(),
	}
	per := rec.Grid.SlotsPerResource
	for _, st := range rec.Starts {
		offset := st.Slot
		if per > 0 {
			offset = st.Slot % per
		}
		msg.Starts = append(msg.Starts, StartMessage{
			RunID:       rec.RunID,
			Observation: st.Observation,
			Resource:    st.Resource,
			Offset:      offset,
			Slots:       st.Slots,
			StartSecond: (time.Duration(offset) * slot).Seconds(),
			Priority:    st.Priority,
		})
	}

	p.mu.Lock()
	p.ackChans[rec.RunID] = make(chan struct{}, 1)
	p.mu.Unlock()

	if err := p.publishJSON(p.PlanTopic(), p.qosFor("plan"), true, msg); err != nil {
		return "", err
	}
	for _, st := range msg.Starts {
		if err := p.publishJSON(p.StartTopic(st.Resource), p.qosFor("start"), false, st); err != nil {
			return "", err
		}
	}
	p.logger.Infof("published run %s with %d starts", rec.RunID, len(msg.Starts))
	return rec.RunID, nil
}

func (p *Publisher) publishJSON(topic string, qos byte, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		if publishErr = token.Error(); publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish to %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// WaitForAck blocks until a site acknowledges the run or the timeout expires.
func (p *Publisher) WaitForAck(runID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[runID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown run %s", runID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, runID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, ErrAckTimeout
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
