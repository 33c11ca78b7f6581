package event

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paymocklabs/paymock/internal/domain"
)

const deliveryQueueSize = 256

// Delivery is one webhook POST waiting for the worker.
type Delivery struct {
	URL          string
	SharedSecret string
	Event        domain.Event
}

// Dispatcher delivers events to registered webhooks from a single worker
// goroutine. Delivery is fire-and-forget: failures are logged and dropped,
// never retried, and never affect the entity state already committed.
type Dispatcher struct {
	log    *zap.Logger
	client *http.Client
	queue  chan Delivery
	done   chan struct{}
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		log:    log.Named("webhook.dispatcher"),
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan Delivery, deliveryQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue hands a delivery to the worker without blocking; a full queue
// drops the delivery, which the no-retry contract allows.
func (d *Dispatcher) Enqueue(delivery Delivery) {
	select {
	case d.queue <- delivery:
	default:
		d.log.Warn("webhook queue full, dropping delivery",
			zap.String("url", delivery.URL),
			zap.String("event", delivery.Event.ID))
	}
}

// Start runs the worker until Stop.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for delivery := range d.queue {
			d.send(delivery)
		}
	}()
}

// Stop closes the queue and waits for in-flight deliveries.
func (d *Dispatcher) Stop(ctx context.Context) error {
	close(d.queue)
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) send(delivery Delivery) {
	timestamp := time.Now().UTC().Unix()
	payload, err := marshalEvent(delivery.Event)
	if err != nil {
		d.log.Error("marshal event", zap.Error(err), zap.String("event", delivery.Event.ID))
		return
	}

	signature := ComputeSignature(fmt.Sprintf("%d.%s", timestamp, payload), delivery.SharedSecret)

	req, err := http.NewRequest(http.MethodPost, delivery.URL, bytes.NewReader(payload))
	if err != nil {
		d.log.Error("build webhook request", zap.Error(err), zap.String("url", delivery.URL))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d, v1=%s", timestamp, signature))

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn("webhook delivery failed",
			zap.Error(err),
			zap.String("url", delivery.URL),
			zap.String("event", delivery.Event.ID),
			zap.String("type", delivery.Event.Type))
		return
	}
	resp.Body.Close()

	d.log.Info("webhook delivered",
		zap.Int("status", resp.StatusCode),
		zap.String("event", delivery.Event.ID),
		zap.String("type", delivery.Event.Type))
}

// ComputeSignature is the HMAC-SHA256 hex digest of "{timestamp}.{payload}"
// under the webhook's shared secret.
func ComputeSignature(signedPayload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}
