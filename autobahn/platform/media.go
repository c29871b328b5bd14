package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/kantek-project/polizei/util"
)

// HTTPMedia downloads media referenced by URL. MaxBytes caps the read so a
// hostile server can not balloon memory; callers additionally enforce the
// pipeline's file-size ceiling before asking for a download at all.
type HTTPMedia struct {
	Client   *http.Client
	MaxBytes int64
}

var _ Media = (*HTTPMedia)(nil)

func NewHTTPMedia(maxBytes int64) *HTTPMedia {
	return &HTTPMedia{
		Client:   util.RobustHTTPClient(),
		MaxBytes: maxBytes,
	}
}

func (m *HTTPMedia) Download(ctx context.Context, ref MediaRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(ref), nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching media %s: status %d", ref, resp.StatusCode)
	}
	body := io.Reader(resp.Body)
	if m.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, m.MaxBytes)
	}
	return io.ReadAll(body)
}
