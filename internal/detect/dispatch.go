package detect

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Alert Dispatch
//
// Threat alerts are fanned out three ways:
//  1. Broadcast via a WebSocket callback to connected dashboards
//  2. Pushed to registered webhook endpoints (chat, SIEM, pager)
//  3. Kept in a bounded in-memory history for the alerts endpoint
//
// Webhook delivery is fire-and-forget per endpoint with a hard client
// timeout; a slow receiver cannot stall the detection pipeline.

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name      string             `json:"name"`
	URL       string             `json:"url"`
	Enabled   bool               `json:"enabled"`
	Headers   map[string]string  `json:"headers,omitempty"`
	MinThreat models.ThreatLevel `json:"minThreat"` // only deliver alerts >= this level
}

// AlertDispatcher delivers threat alerts to dashboards and webhooks.
type AlertDispatcher struct {
	mu           sync.RWMutex
	webhooks     []WebhookEndpoint
	recentAlerts []models.QuantumThreatAlert
	maxHistory   int
	httpClient   *http.Client
	broadcastFn  func(models.QuantumThreatAlert)
}

// NewAlertDispatcher creates a dispatcher. The broadcast callback may be nil.
func NewAlertDispatcher(broadcastFn func(models.QuantumThreatAlert)) *AlertDispatcher {
	return &AlertDispatcher{
		webhooks:    make([]WebhookEndpoint, 0),
		maxHistory:  1000,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		broadcastFn: broadcastFn,
	}
}

// RegisterWebhook adds a webhook endpoint.
func (d *AlertDispatcher) RegisterWebhook(name, url string, minThreat models.ThreatLevel, headers map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.webhooks = append(d.webhooks, WebhookEndpoint{
		Name:      name,
		URL:       url,
		Enabled:   true,
		Headers:   headers,
		MinThreat: minThreat,
	})
	log.Printf("[Dispatch] Registered webhook: %s -> %s (min: %s)", name, url, minThreat)
}

// Dispatch records and distributes a threat alert.
func (d *AlertDispatcher) Dispatch(alert models.QuantumThreatAlert) {
	d.mu.Lock()
	d.recentAlerts = append(d.recentAlerts, alert)
	if len(d.recentAlerts) > d.maxHistory {
		d.recentAlerts = d.recentAlerts[len(d.recentAlerts)-d.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(d.webhooks))
	copy(webhooks, d.webhooks)
	d.mu.Unlock()

	if d.broadcastFn != nil {
		d.broadcastFn(alert)
	}

	for _, wh := range webhooks {
		if !wh.Enabled || alert.ThreatLevel < wh.MinThreat {
			continue
		}
		go d.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: confidence %.2f, %d affected addresses (ttc: %s)",
		alert.ThreatLevel, alert.AttackVector, alert.ConfidenceScore,
		len(alert.AffectedAddresses), alert.EstimatedTimeToCompromise)
}

// RecentAlerts returns the most recent alerts, newest first.
func (d *AlertDispatcher) RecentAlerts(limit int) []models.QuantumThreatAlert {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 || limit > len(d.recentAlerts) {
		limit = len(d.recentAlerts)
	}
	start := len(d.recentAlerts) - limit
	out := make([]models.QuantumThreatAlert, limit)
	for i := 0; i < limit; i++ {
		out[i] = d.recentAlerts[start+limit-1-i]
	}
	return out
}

func (d *AlertDispatcher) sendWebhook(wh WebhookEndpoint, alert models.QuantumThreatAlert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Dispatch] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Dispatch] Failed to create request for %s: %v", wh.Name, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		log.Printf("[Dispatch] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Dispatch] %s returned status %d", wh.Name, resp.StatusCode)
	}
}
