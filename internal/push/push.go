// Package push delivers Web Push notifications to registered endpoints.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type Urgency string

const (
	UrgencyVeryLow Urgency = "very-low"
	UrgencyLow     Urgency = "low"
	UrgencyNormal  Urgency = "normal"
	UrgencyHigh    Urgency = "high"
)

type Options struct {
	TTL     time.Duration
	Urgency Urgency
}

// Sender is the delivery boundary. An error wrapping domain.ErrEndpointGone
// means the endpoint no longer exists and should be dropped.
type Sender interface {
	Send(ctx context.Context, ep domain.PushEndpoint, payload []byte, opts Options) error
}

// StatusError is a non-2xx answer from the push service other than gone.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service answered %d: %s", e.Code, e.Body)
}

func IsGone(err error) bool {
	return errors.Is(err, domain.ErrEndpointGone)
}

type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subscriber string // mailto: or https: contact
}

type WebPushSender struct {
	vapid  VAPID
	client *http.Client
}

func NewWebPushSender(vapid VAPID, client *http.Client) *WebPushSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebPushSender{vapid: vapid, client: client}
}

func (s *WebPushSender) Send(ctx context.Context, ep domain.PushEndpoint, payload []byte, opts Options) error {
	sub := &webpush.Subscription{
		Endpoint: ep.Endpoint,
		Keys: webpush.Keys{
			P256dh: ep.Keys.P256dh,
			Auth:   ep.Keys.Auth,
		},
	}
	urgency := opts.Urgency
	if urgency == "" {
		urgency = UrgencyNormal
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.vapid.Subscriber,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             int(opts.TTL / time.Second),
		Urgency:         webpush.Urgency(urgency),
	})
	if err != nil {
		return fmt.Errorf("webpush: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", domain.ErrEndpointGone, resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
}

var ErrDisabled = errors.New("push delivery is not configured")

// Disabled is the Sender used when no VAPID keys are configured.
type Disabled struct{}

func (Disabled) Send(context.Context, domain.PushEndpoint, []byte, Options) error {
	return ErrDisabled
}
