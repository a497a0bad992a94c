package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/gridinertia/core/dispatch"
	coremon "github.com/kilianp07/gridinertia/core/monitoring"
	"github.com/kilianp07/gridinertia/infra/logger"
)

// ScheduleMessage is the JSON payload published for one decoded edge.
type ScheduleMessage struct {
	RunID      string               `json:"run_id"`
	Scenario   string               `json:"scenario"`
	Node       string               `json:"node"`
	From       string               `json:"from"`
	To         string               `json:"to,omitempty"`
	Role       dispatch.Role        `json:"role"`
	Provision  string               `json:"provision,omitempty"`
	Timestamps []time.Time          `json:"timestamps"`
	Series     map[string][]float64 `json:"series"`
	Scalars    map[string]float64   `json:"scalars,omitempty"`
}

// StatusMessage is the JSON payload published once per run.
type StatusMessage struct {
	RunID     string    `json:"run_id"`
	Scenario  string    `json:"scenario"`
	Status    string    `json:"status"`
	Objective float64   `json:"objective,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends decoded schedules to an MQTT broker.
type Publisher struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// NewPublisher connects to the broker described by cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	cli, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		cli:        cli,
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}
	if p.prefix == "" {
		p.prefix = "gridinertia"
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	return p, nil
}

// ScheduleTopic returns the topic of one edge: <prefix>/<scenario>/<from>[/<to>].
func (p *Publisher) ScheduleTopic(scenario string, k dispatch.Key) string {
	parts := []string{p.prefix, scenario, k.From}
	if k.To != "" {
		parts = append(parts, k.To)
	}
	return strings.Join(parts, "/")
}

// PublishSchedule publishes every decoded edge of res and returns how many
// messages were sent. It stops at the first failed publish.
func (p *Publisher) PublishSchedule(ctx context.Context, runID, scenario string, res dispatch.Results) (int, error) {
	ts := res.Timestamps()
	sent := 0
	for _, k := range res.Keys() {
		rec, err := res.Get(k.From, k.To)
		if err != nil {
			return sent, err
		}
		msg := ScheduleMessage{
			RunID:      runID,
			Scenario:   scenario,
			Node:       rec.Node,
			From:       k.From,
			To:         k.To,
			Role:       rec.Role,
			Timestamps: ts,
			Series:     rec.Sequences,
			Scalars:    rec.Scalars,
		}
		if rec.Role == dispatch.RoleInertia {
			msg.Provision = rec.Provision.String()
		}
		topic := p.ScheduleTopic(scenario, k)
		if err := p.publishJSON(ctx, topic, p.qosFor("schedule"), msg); err != nil {
			coremon.CaptureException(err, map[string]string{"module": "mqtt", "run_id": runID, "topic": topic})
			return sent, err
		}
		sent++
	}
	p.log.Infof("published %d schedules for run %s", sent, runID)
	return sent, nil
}

// PublishStatus publishes the outcome of a run on <prefix>/<scenario>/status.
func (p *Publisher) PublishStatus(ctx context.Context, msg StatusMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	topic := strings.Join([]string{p.prefix, msg.Scenario, "status"}, "/")
	return p.publishJSON(ctx, topic, p.qosFor("status"), msg)
}

func (p *Publisher) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, qos byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.log.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
