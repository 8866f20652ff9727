package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"github.com/fbpage-agent/internal/ai"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

const (
	// images are downscaled to fit this box before analysis
	maxAnalysisDimension = 1568
	maxAnalysisBytes     = 4 << 20
	maxFetchBytes        = 25 << 20
)

// ImageFetcher loads a remote image into memory
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads images over plain HTTP
type HTTPFetcher struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewHTTPFetcher creates an image fetcher
func NewHTTPFetcher(limiter *ratelimit.MultiLimiter, log *logger.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: limiter,
		log:         log.WithComponent("image_fetch"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.rateLimiter != nil {
		if err := f.rateLimiter.Wait(ctx, ratelimit.LimiterMedia); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image request failed: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxFetchBytes)
	}
	return data, nil
}

// prepareForAnalysis shrinks large images to keep model requests small.
// Images the decoder does not understand are passed through untouched.
func prepareForAnalysis(data []byte, mimeType string) ai.Image {
	original := ai.Image{Data: data, MIMEType: mimeType}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return original
	}

	b := img.Bounds()
	if b.Dx() <= maxAnalysisDimension && b.Dy() <= maxAnalysisDimension && len(data) <= maxAnalysisBytes {
		return original
	}

	resized := imaging.Fit(img, maxAnalysisDimension, maxAnalysisDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return original
	}
	return ai.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}
}
