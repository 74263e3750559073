package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"

	"fieldsync/internal/logger"

	"go.uber.org/zap"
)

// HTTPProber reports online when a HEAD request to URL gets any response
// below 500. Any answer from the server means the network path works.
type HTTPProber struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		logger.Log.Warn("invalid connectivity probe url",
			zap.String("url", p.URL),
			zap.Error(err))
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		logger.Log.Debug("connectivity probe failed",
			zap.String("url", p.URL),
			zap.Error(err))
		return false
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	return resp.StatusCode < http.StatusInternalServerError
}
