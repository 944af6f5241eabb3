package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/signing"
)

type SendResult struct {
	StatusCode   int
	ResponseBody string
	DurationMs   int64
	Error        string
}

// Sender performs the actual HTTP call for one attempt. It holds two clients
// so endpoints that opted out of TLS verification do not weaken anyone else.
type Sender struct {
	client         *http.Client
	insecureClient *http.Client
	maxResponseLen int
}

func NewSender(maxResponseLen int) *Sender {
	if maxResponseLen <= 0 {
		maxResponseLen = 1000
	}
	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &Sender{
		client:         &http.Client{},
		insecureClient: &http.Client{Transport: insecureTransport},
		maxResponseLen: maxResponseLen,
	}
}

type envelope struct {
	Event    string           `json:"event"`
	Data     json.RawMessage  `json:"data"`
	Metadata envelopeMetadata `json:"metadata"`
}

type envelopeMetadata struct {
	Attempt    int    `json:"attempt"`
	Timestamp  int64  `json:"timestamp"`
	DeliveryID string `json:"delivery_id"`
}

// Send posts the signed envelope for attempt attemptNo. The per-endpoint
// timeout bounds the whole call; the reported duration covers only the HTTP
// round trip, not serialization or signing.
func (s *Sender) Send(ctx context.Context, ep *models.Endpoint, d *models.Delivery, attemptNo int) *SendResult {
	timestamp := time.Now().Unix()
	body, err := json.Marshal(envelope{
		Event: d.EventType,
		Data:  d.Payload,
		Metadata: envelopeMetadata{
			Attempt:    attemptNo,
			Timestamp:  timestamp,
			DeliveryID: d.ID,
		},
	})
	if err != nil {
		return &SendResult{Error: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	signature := signing.SignAt(ep.Secret, body, timestamp)

	ctx, cancel := context.WithTimeout(ctx, ep.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return &SendResult{Error: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("User-Agent", "hookrelay/1.0")
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	// Reserved headers are set last so endpoint-configured headers cannot
	// replace them.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(attemptNo))

	client := s.client
	if !ep.VerifySSL {
		client = s.insecureClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return &SendResult{
			DurationMs: durationMs,
			Error:      fmt.Sprintf("request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, int64(s.maxResponseLen)))

	result := &SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(respBody),
		DurationMs:   durationMs,
	}
	if !IsSuccess(resp.StatusCode) {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result
}
