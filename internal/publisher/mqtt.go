package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jgoulah/homeenergy/internal/config"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// mqttClient is the part of mqtt.Client the publisher uses
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher pushes forecasts and anomalies to MQTT and Home Assistant
type Publisher struct {
	client      mqttClient
	topicPrefix string
	haConfig    config.HAConfig
	httpClient  *http.Client
	now         func() time.Time
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(cfg *config.Config) (*Publisher, error) {
	haCfg := cfg.HomeAssistant
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.EntityID == "" {
			return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}

	var client mqtt.Client
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTT.Broker))
		opts.SetClientID(cfg.GetClientID())
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if cfg.MQTT.Username != "" {
			opts.SetUsername(cfg.MQTT.Username)
		}
		if cfg.MQTT.Password != "" {
			opts.SetPassword(cfg.MQTT.Password)
		}

		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
	}

	p := &Publisher{
		topicPrefix: cfg.GetTopicPrefix(),
		haConfig:    haCfg,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		now:         time.Now,
	}
	if client != nil {
		p.client = client
	}
	return p, nil
}

// ForecastMessage is the retained payload on <prefix>/forecast
type ForecastMessage struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Household   string                 `json:"household,omitempty"`
	Points      []models.ForecastPoint `json:"points"`
}

// AnomalyMessage is the retained payload on <prefix>/anomalies/<household>
type AnomalyMessage struct {
	GeneratedAt time.Time            `json:"generated_at"`
	HouseholdID string               `json:"household_id"`
	Days        int                  `json:"days"`
	Anomalies   []models.ScoredPoint `json:"anomalies"`
}

// ForecastTopic returns the forecast topic
func (p *Publisher) ForecastTopic() string {
	return p.topicPrefix + "/forecast"
}

// AnomalyTopic returns the anomaly topic for a household
func (p *Publisher) AnomalyTopic(household string) string {
	return p.topicPrefix + "/anomalies/" + household
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	token := p.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	slog.Debug("Published", "topic", topic, "bytes", len(payload))
	return nil
}

// PublishForecast publishes the forecast as one retained message
func (p *Publisher) PublishForecast(household string, points []models.ForecastPoint) error {
	if p.client == nil {
		return fmt.Errorf("MQTT publishing is not enabled in config")
	}
	return p.publishJSON(p.ForecastTopic(), ForecastMessage{
		GeneratedAt: p.now().UTC(),
		Household:   household,
		Points:      points,
	})
}

// PublishAnomalies publishes one retained message per household carrying the
// flagged days. Households without anomalies get an empty list so stale
// alerts are cleared.
func (p *Publisher) PublishAnomalies(points []models.ScoredPoint) (int, error) {
	if p.client == nil {
		return 0, fmt.Errorf("MQTT publishing is not enabled in config")
	}

	var order []string
	byHousehold := make(map[string]*AnomalyMessage)
	generated := p.now().UTC()
	for _, pt := range points {
		msg, ok := byHousehold[pt.HouseholdID]
		if !ok {
			msg = &AnomalyMessage{GeneratedAt: generated, HouseholdID: pt.HouseholdID, Anomalies: []models.ScoredPoint{}}
			byHousehold[pt.HouseholdID] = msg
			order = append(order, pt.HouseholdID)
		}
		msg.Days++
		if pt.Anomaly {
			msg.Anomalies = append(msg.Anomalies, pt)
		}
	}

	flagged := 0
	for _, h := range order {
		msg := byHousehold[h]
		if err := p.publishJSON(p.AnomalyTopic(h), msg); err != nil {
			return flagged, err
		}
		flagged += len(msg.Anomalies)
	}
	return flagged, nil
}

// HAState is the body of a Home Assistant state update
type HAState struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// PushForecastState sets the configured Home Assistant entity to the first
// forecast day's prediction
func (p *Publisher) PushForecastState(ctx context.Context, points []models.ForecastPoint) error {
	if !p.haConfig.Enabled {
		return fmt.Errorf("Home Assistant publishing is not enabled in config")
	}
	if len(points) == 0 {
		return fmt.Errorf("no forecast points to publish")
	}

	next := points[0]
	apiURL := fmt.Sprintf("%s/api/states/%s", p.haConfig.URL, p.haConfig.EntityID)
	payload := HAState{
		State: fmt.Sprintf("%.2f", next.YHat),
		Attributes: map[string]any{
			"unit_of_measurement": "kWh",
			"device_class":        "energy",
			"forecast_date":       next.Date.Format(models.DateLayout),
			"yhat_lower":          next.YHatLower,
			"yhat_upper":          next.YHatUpper,
			"horizon_days":        len(points),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
