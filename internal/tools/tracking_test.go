package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackingHTML = `<html><head><title>AWB 1234 - Bluedart</title></head><body>
<nav>Home | Track | Contact</nav>
<article>
<h1>Shipment AWB 1234</h1>
<p>Your shipment is out for delivery and will reach the consignee today before 7 PM.</p>
<p>Last scan: Mumbai hub, dispatched at 09:15 with the delivery associate assigned to your route.</p>
</article>
</body></html>`

func trackingServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTrackingPage_ExtractsText(t *testing.T) {
	srv := trackingServer(t, http.StatusOK, trackingHTML)
	tool := NewTrackingPageTool()
	tool.Client = srv.Client()

	res, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL + "/track?awb=1234"})
	require.NoError(t, err)
	require.False(t, res.IsError(), res.Message())
	assert.Equal(t, "tracking_page", res.Type())
	assert.Contains(t, res["content"], "out for delivery")
	assert.NotContains(t, res["content"], "<p>")
	assert.Equal(t, false, res["truncated"])
}

func TestTrackingPage_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"not found", http.StatusNotFound, false},
		{"forbidden", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := trackingServer(t, tt.status, "nope")
			tool := NewTrackingPageTool()
			tool.Client = srv.Client()

			res, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL})
			require.NoError(t, err)
			assert.True(t, res.IsError())
			assert.Contains(t, res.Message(), "status code")
			assert.Equal(t, tt.retryable, res.Retryable())
		})
	}
}

func TestTrackingPage_RejectsBadURL(t *testing.T) {
	tool := NewTrackingPageTool()
	for _, raw := range []string{"", "not a url", "/relative/path"} {
		res, err := tool.Invoke(context.Background(), map[string]any{"url": raw})
		require.NoError(t, err)
		assert.True(t, res.IsError(), raw)
		assert.False(t, res.Retryable(), raw)
	}
}

func TestTruncateText_KeepsRunesWhole(t *testing.T) {
	// "₹" is three bytes, so a limit of 7 lands inside the third rune.
	out, cut := truncateText(strings.Repeat("₹", 5), 7)
	assert.True(t, cut)
	assert.Equal(t, "₹₹", out)
	assert.True(t, utf8.ValidString(out))

	out, cut = truncateText("paid ₹500", 100)
	assert.False(t, cut)
	assert.Equal(t, "paid ₹500", out)

	long := strings.Repeat("a", maxTrackingContent-1) + "डिलीवरी"
	out, cut = truncateText(long, maxTrackingContent)
	assert.True(t, cut)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, maxTrackingContent-1, len(out))
}
