/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrNotFound = errors.New("not found")

const maxRetries = 4

// Source serves catalog documents and audio by slash-separated name,
// relative to the catalog root (e.g. "audio/songs.json").
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// URL is the address a browser uses to fetch name.
	URL(name string) string
	String() string
}

func cleanName(name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return clean, nil
}

// DirSource reads the catalog from a local directory. Browsers fetch its
// files under Prefix, which the server maps back onto Root.
type DirSource struct {
	Root   string
	Prefix string
}

func (d *DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(clean)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	case err != nil:
		return nil, err
	}

	return f, nil
}

func (d *DirSource) URL(name string) string {
	clean, err := cleanName(name)
	if err != nil {
		return ""
	}

	escaped := strings.Split(clean, "/")
	for i, part := range escaped {
		escaped[i] = url.PathEscape(part)
	}

	return strings.TrimSuffix(d.Prefix, "/") + "/" + strings.Join(escaped, "/")
}

func (d *DirSource) String() string {
	return d.Root
}

// HTTPSource reads the catalog from a static web host.
type HTTPSource struct {
	Base   *url.URL
	Client *http.Client
	// BackOff builds the retry policy for one request. Nil uses an
	// exponential policy.
	BackOff func() backoff.BackOff
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return b
}

func (h *HTTPSource) URL(name string) string {
	clean, err := cleanName(name)
	if err != nil {
		return ""
	}

	return h.Base.JoinPath(strings.Split(clean, "/")...).String()
}

func (h *HTTPSource) String() string {
	return h.Base.String()
}

func (h *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	target := h.URL(clean)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	policy := newBackOff
	if h.BackOff != nil {
		policy = h.BackOff
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy(), maxRetries), ctx)

	return backoff.RetryWithData(func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp.Body, nil
		case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
			resp.Body.Close()
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", clean, ErrNotFound))
		case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: unexpected status %s", clean, resp.Status)
		default:
			resp.Body.Close()
			return nil, backoff.Permanent(fmt.Errorf("fetching %s: unexpected status %s", clean, resp.Status))
		}
	}, b)
}

// NewSource picks a source for locator: an existing directory, a URL, or a
// bare host name served over https.
func NewSource(locator, mediaPrefix string, client *http.Client) (Source, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, errors.New("empty collections locator")
	}

	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, fmt.Errorf("invalid collections url %q: %w", locator, err)
		}
		return &HTTPSource{Base: u, Client: client}, nil
	}

	if info, err := os.Stat(locator); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("collections path %q is not a directory", locator)
		}

		root, err := filepath.Abs(locator)
		if err != nil {
			return nil, err
		}

		return &DirSource{Root: root, Prefix: mediaPrefix}, nil
	}

	u, err := url.Parse("https://" + strings.TrimSuffix(locator, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("collections locator %q is neither a directory nor a host", locator)
	}

	return &HTTPSource{Base: u, Client: client}, nil
}

func readAll(ctx context.Context, src Source, name string) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
