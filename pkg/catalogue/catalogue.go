// Package catalogue implements the one method appmgr.Catalogue needs
// against the remote catalogue/license service named in spec.md §6
// ("Catalogue client (HTTP, out of the core): GET
// /api/v2/manifests/{app}/{version} …"). The service's own auth and
// licensing flow are out of the core's scope; this client only resolves a
// manifest by key and sends its requests without any authentication
// header. Grounded on lazydocker's HTTP client usage in
// pkg/commands/os.go (plain net/http, explicit timeout, no retry library
// in the example corpus for a one-shot GET).
package catalogue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
)

// Client fetches manifests from the console's catalogue endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (spec.md §6 "console URI").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

// FetchManifest implements appmgr.Catalogue.
func (c *Client) FetchManifest(ctx context.Context, appKey id.AppKey) (*manifest.Manifest, error) {
	url := fmt.Sprintf("%s/api/v2/manifests/%s/%s", c.baseURL, appKey.Name, appKey.Version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "build catalogue request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "fetch manifest from catalogue", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, flecserr.Newf(flecserr.KindNotFound, "catalogue has no manifest for %s", appKey)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, flecserr.Newf(flecserr.KindRuntimeFailure, "catalogue returned %d fetching %s", resp.StatusCode, appKey)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "read catalogue manifest response", err)
	}

	single, err := manifest.ParseSingleJSON(body)
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "parse catalogue manifest response", err)
	}
	return &manifest.Manifest{Key: single.Key, Kind: manifest.KindSingle, Single: single}, nil
}
