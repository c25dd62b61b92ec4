package push

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/require"
)

func response(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func TestWebPushSenderClassifiesResponses(t *testing.T) {
	s := NewWebPushSender(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", Subject: "mailto:ops@example.com"})
	s.deliver = func(_ context.Context, msg []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		if !strings.Contains(string(msg), `"title":"Hello"`) || opts.VAPIDPublicKey != "pub" {
			return response(http.StatusBadRequest), nil
		}
		switch sub.Endpoint {
		case "ok":
			return response(http.StatusCreated), nil
		case "gone":
			return response(http.StatusGone), nil
		case "missing":
			return response(http.StatusNotFound), nil
		case "error":
			return nil, errors.New("dial tcp: refused")
		default:
			return response(http.StatusInternalServerError), nil
		}
	}

	subs := []Subscription{{Endpoint: "ok"}, {Endpoint: "gone"}, {Endpoint: "missing"}, {Endpoint: "error"}, {Endpoint: "boom"}}
	res, err := s.Send(context.Background(), subs, Payload{Title: "Hello", Body: "World"})
	require.NoError(t, err)

	require.Equal(t, 5, res.TotalSent)
	require.Equal(t, 1, res.DeliveredCount)
	require.Equal(t, 4, res.FailedCount)
	require.ElementsMatch(t, []string{"gone", "missing"}, res.Expired)
}

func TestDisabledSender(t *testing.T) {
	res, err := Disabled{}.Send(context.Background(), []Subscription{{Endpoint: "a"}, {Endpoint: "b"}}, Payload{})
	require.NoError(t, err)
	require.Equal(t, Result{TotalSent: 2, FailedCount: 2}, res)
}
