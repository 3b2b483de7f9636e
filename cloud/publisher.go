package cloud

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes solve reports to MQTT.
//
// Topics, relative to the publish prefix:
//
//	{prefix}/result  full SolveReport JSON
//	{prefix}/text    decoded message as plain text
//	{prefix}/error   last failure as {"error": "...", "timestamp": ...}
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *SolveReport
	mu            sync.RWMutex
}

// NewPublisher creates a report publisher. An empty prefix falls back to
// MQTT_PUBLISH_PREFIX and then "cloudsnap".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = os.Getenv("MQTT_PUBLISH_PREFIX")
	}
	if prefix == "" {
		prefix = "cloudsnap"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true, // late subscribers see the latest result
	}
}

// PublishReport publishes the report JSON and the decoded text
func (p *Publisher) PublishReport(report *SolveReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if report == nil {
		return fmt.Errorf("publishing report: nil report")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := p.publish(p.topic("result"), payload); err != nil {
		log.Printf("Error publishing report: %v", err)
		return err
	}
	if err := p.publish(p.topic("text"), []byte(report.Text)); err != nil {
		log.Printf("Error publishing text: %v", err)
		return err
	}

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	log.Printf("Published result: %s", report.Summary())
	return nil
}

// PublishError publishes a failed solve
func (p *Publisher) PublishError(solveErr error) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"error":     solveErr.Error(),
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling error payload: %w", err)
	}

	return p.publish(p.topic("error"), payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	p.mu.RLock()
	qos, retain := p.qos, p.retain
	p.mu.RUnlock()

	token := p.client.Publish(topic, qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) topic(name string) string {
	return fmt.Sprintf("%s/%s", p.publishPrefix, name)
}

// LastReport returns the most recently published report
func (p *Publisher) LastReport() (*SolveReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.last != nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.mu.Lock()
		p.qos = qos
		p.mu.Unlock()
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.mu.Lock()
	p.retain = retain
	p.mu.Unlock()
}
