// Package push delivers browser notifications over the Web Push protocol.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"trading-challenges/internal/logger"
)

// Subscription is a browser push endpoint with its encryption keys.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

type Payload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	URL   string                 `json:"url,omitempty"`
	Type  string                 `json:"type,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Result summarises one fan-out. Expired lists endpoints the push service
// reported as gone; callers should delete them.
type Result struct {
	TotalSent      int      `json:"total_sent"`
	DeliveredCount int      `json:"delivered_count"`
	FailedCount    int      `json:"failed_count"`
	Expired        []string `json:"expired,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, subs []Subscription, payload Payload) (Result, error)
	PublicKey() string
}

type deliverFunc func(ctx context.Context, msg []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	TTL             int
	Concurrency     int
}

// WebPushSender signs requests with VAPID and sends them concurrently.
type WebPushSender struct {
	opts        webpush.Options
	concurrency int
	deliver     deliverFunc
}

func NewWebPushSender(cfg Config) *WebPushSender {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 10
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	return &WebPushSender{
		opts: webpush.Options{
			Subscriber:      cfg.Subject,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             cfg.TTL,
		},
		concurrency: cfg.Concurrency,
		deliver:     webpush.SendNotificationWithContext,
	}
}

func (s *WebPushSender) PublicKey() string {
	return s.opts.VAPIDPublicKey
}

func (s *WebPushSender) Send(ctx context.Context, subs []Subscription, payload Payload) (Result, error) {
	msg, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode push payload: %w", err)
	}

	var (
		mu  sync.Mutex
		res = Result{TotalSent: len(subs)}
	)
	log := logger.Component("push")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			opts := s.opts
			resp, err := s.deliver(gctx, msg, &webpush.Subscription{
				Endpoint: sub.Endpoint,
				Keys:     webpush.Keys{Auth: sub.Auth, P256dh: sub.P256dh},
			}, &opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedCount++
				log.WithError(err).Debug("push delivery failed")
				return nil
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				res.DeliveredCount++
			case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
				res.FailedCount++
				res.Expired = append(res.Expired, sub.Endpoint)
			default:
				res.FailedCount++
				log.WithField("status", resp.StatusCode).Debug("push service rejected notification")
			}
			return nil
		})
	}
	_ = g.Wait()

	return res, nil
}

// Disabled is used when no VAPID keys are configured; every send fails.
type Disabled struct{}

func (Disabled) Send(_ context.Context, subs []Subscription, _ Payload) (Result, error) {
	return Result{TotalSent: len(subs), FailedCount: len(subs)}, nil
}

func (Disabled) PublicKey() string { return "" }
