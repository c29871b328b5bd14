package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/time/rate"

	"github.com/kantek-project/polizei/autobahn/cachestore"
	"github.com/kantek-project/polizei/util"
)

// HTTPResolver resolves URLs by following redirects to their final
// destination. Link shorteners are the normal spam delivery vehicle, so the
// canonical domain of a link is whatever it ultimately lands on, not the face
// value of the text. Entity resolution is delegated to an inner resolver
// (the platform client), optionally through a cache.
type HTTPResolver struct {
	Client  *http.Client
	Limiter *rate.Limiter
	// Inner handles ResolveEntity; nil means every entity is ErrNotFound.
	Inner EntityResolver
	// Cache, when set, memoizes resolved entities.
	Cache cachestore.CacheStore
}

var _ EntityResolver = (*HTTPResolver)(nil)

func NewHTTPResolver(inner EntityResolver, cache cachestore.CacheStore, reqPerSec int) *HTTPResolver {
	return &HTTPResolver{
		Client:  util.RobustHTTPClient(),
		Limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
		Inner:   inner,
		Cache:   cache,
	}
}

func normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy)
}

// finalURL follows redirects and returns where the link actually lands.
func (r *HTTPResolver) finalURL(ctx context.Context, raw string) (string, error) {
	norm, err := normalize(raw)
	if err != nil {
		return "", fmt.Errorf("normalizing url: %w", err)
	}
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, norm, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		// the content is irrelevant; if the host won't answer, the
		// normalized form is the best we have
		return norm, nil
	}
	defer resp.Body.Close()
	return resp.Request.URL.String(), nil
}

func (r *HTTPResolver) ResolveURL(ctx context.Context, raw string) (string, error) {
	final, err := r.finalURL(ctx, raw)
	if err != nil {
		return "", err
	}
	host := Netloc(final)
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrNotFound, raw)
	}
	return strings.TrimPrefix(host, "www."), nil
}

func (r *HTTPResolver) ResolveURLHost(ctx context.Context, raw string) (string, error) {
	final, err := r.finalURL(ctx, raw)
	if err != nil {
		return "", err
	}
	final = strings.TrimPrefix(final, "http://")
	final = strings.TrimPrefix(final, "https://")
	return strings.TrimPrefix(final, "www."), nil
}

const entityCacheName = "entity"

func (r *HTTPResolver) ResolveEntity(ctx context.Context, identifier string) (*Entity, error) {
	if r.Inner == nil {
		return nil, ErrNotFound
	}
	if r.Cache != nil {
		if raw, err := r.Cache.Get(ctx, entityCacheName, identifier); err == nil && raw != "" {
			var ent Entity
			if err := json.Unmarshal([]byte(raw), &ent); err == nil {
				return &ent, nil
			}
		}
	}
	ent, err := r.Inner.ResolveEntity(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if r.Cache != nil {
		if raw, err := json.Marshal(ent); err == nil {
			_ = r.Cache.Set(ctx, entityCacheName, identifier, string(raw))
		}
	}
	return ent, nil
}
