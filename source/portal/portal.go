// Package portal streams blocks from an SQD portal dataset over HTTP.
package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/datazip-inc/pipes/source"
	"github.com/datazip-inc/pipes/types"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// ErrPermanent marks portal responses that retrying cannot fix
var ErrPermanent = errors.New("permanent portal error")

// errNoData means the portal has nothing at or after the requested block yet
var errNoData = errors.New("no data available yet")

type Portal struct {
	config *Config
	client *http.Client
}

var _ source.Source = (*Portal)(nil)

func New(config *Config) (*Portal, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// bounds the wait for headers only; bodies stream for as long as the portal sends
	transport.ResponseHeaderTimeout = config.requestTimeout()
	transport.DisableCompression = true

	return &Portal{
		config: config,
		client: &http.Client{Transport: transport},
	}, nil
}

func (p *Portal) Check(ctx context.Context) error {
	_, err := p.Head(ctx)
	return err
}

// Head returns the highest block number the portal has data for.
func (p *Portal) Head(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("head"), nil)
	if err != nil {
		return 0, err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach portal: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("portal head returned status %d", resp.StatusCode)
	}

	var head struct {
		Number *uint64 `json:"number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&head); err != nil {
		return 0, fmt.Errorf("failed to decode portal head: %s", err)
	}
	if head.Number == nil {
		return 0, fmt.Errorf("portal head without block number")
	}
	return *head.Number, nil
}

func (p *Portal) Open(ctx context.Context, spec types.StreamSpec, from uint64) (source.Stream, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if from < spec.Range.From {
		return nil, fmt.Errorf("stream[%s]: resume block[%d] before range start[%d]", spec.ID, from, spec.Range.From)
	}

	return newStream(ctx, p, spec, from), nil
}

func (p *Portal) endpoint(path string) string {
	return strings.TrimRight(p.config.URL, "/") + "/" + path
}

func (p *Portal) setHeaders(req *http.Request) {
	for key, value := range p.config.Headers {
		req.Header.Set(key, value)
	}
}

// request posts a stream query starting at from. The caller owns the
// returned body.
func (p *Portal) request(ctx context.Context, spec types.StreamSpec, from uint64) (io.ReadCloser, error) {
	body, err := json.Marshal(buildQuery(spec, from))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode query: %s", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("stream"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPermanent, err)
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/jsonl")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNoContent:
		resp.Body.Close()
		return nil, errNoData
	default:
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		err := fmt.Errorf("portal returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(message)))
		if transientStatus(resp.StatusCode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrPermanent, err)
	}

	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp.Body, nil
	}
	reader, err := gzip.NewReader(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to open gzip body: %s", err)
	}
	return &gzipBody{Reader: reader, body: resp.Body}, nil
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// retryable reports whether err may go away by asking again
func retryable(err error) bool {
	if errors.Is(err, ErrPermanent) || errors.Is(err, source.ErrOutOfOrder) || errors.Is(err, source.ErrMalformedBlock) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	gzErr := g.Reader.Close()
	if err := g.body.Close(); err != nil {
		return err
	}
	return gzErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
