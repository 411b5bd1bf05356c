package speed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazz-dev/pinglog/internal/version"
)

// DefaultBufferSize is the read chunk size used when none is configured.
const DefaultBufferSize = 10 * 1024

// Downloader opens a byte stream for url.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPDownloader streams a resource with an HTTP GET.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader returns a downloader whose whole transfer is bounded by timeout.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{client: &http.Client{Timeout: timeout}}
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// StreamMeter downloads a fixed URL and counts bytes without touching disk.
type StreamMeter struct {
	url        string
	downloader Downloader
	bufSize    int
	now        func() time.Time
	logger     *slog.Logger
}

// NewStreamMeter creates a StreamMeter. Pass nil logger to use the default logger.
func NewStreamMeter(url string, d Downloader, bufSize int, logger *slog.Logger) *StreamMeter {
	if logger == nil {
		logger = slog.Default()
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &StreamMeter{
		url:        url,
		downloader: d,
		bufSize:    bufSize,
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock replaces the clock used to time the transfer.
func (m *StreamMeter) SetClock(now func() time.Time) {
	m.now = now
}

func (m *StreamMeter) Measure(ctx context.Context) (Result, error) {
	body, err := m.downloader.Download(ctx, m.url)
	if err != nil {
		return Result{}, fmt.Errorf("downloading %s: %w", m.url, err)
	}
	defer body.Close()

	buf := make([]byte, m.bufSize)
	var total int64
	start := m.now()
	for {
		n, err := body.Read(buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("reading %s: %w", m.url, err)
		}
	}
	elapsed := m.now().Sub(start)
	if elapsed <= 0 {
		return Result{}, fmt.Errorf("transfer of %d bytes took no measurable time", total)
	}

	res := Result{
		MBps:    MBps(total, elapsed),
		Bytes:   total,
		Elapsed: elapsed,
		Source:  m.url,
	}
	m.logger.Debug("download finished",
		"url", m.url,
		"size", humanize.IBytes(uint64(total)),
		"elapsed", elapsed,
	)
	return res, nil
}
