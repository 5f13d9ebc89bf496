package mapview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/microsense/internal/loader"
)

const maxScriptBytes = 4 << 20

// ScriptFetcher returns a loader Func that downloads the map provider's
// bootstrap script for apiKey.
func ScriptFetcher(scriptURL, apiKey string, timeout time.Duration) loader.Func[[]byte] {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) ([]byte, error) {
		u, err := url.Parse(scriptURL)
		if err != nil {
			return nil, fmt.Errorf("parse maps script url: %w", err)
		}
		q := u.Query()
		q.Set("key", apiKey)
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch maps script: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch maps script: status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes))
		if err != nil {
			return nil, fmt.Errorf("read maps script: %w", err)
		}
		return body, nil
	}
}

// WidgetLoader returns a loader that produces a MemoryWidget once script (if
// non-nil) has loaded.
func WidgetLoader(script *loader.Loader[[]byte]) *loader.Loader[Widget] {
	return loader.New(func(ctx context.Context) (Widget, error) {
		if script != nil {
			if _, err := script.Get(ctx); err != nil {
				return nil, err
			}
		}
		return NewMemoryWidget(), nil
	})
}
