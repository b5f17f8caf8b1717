// Package notify pushes prominent failure alerts to an ntfy-style
// endpoint. Outside the Telegram host there is no native alert surface;
// this is the CLI's stand-in for it.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SendAlert posts message to the endpoint with a title and high priority.
func SendAlert(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("X-Title", title)
	}
	req.Header.Set("X-Priority", "high")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy alert failed: status=%d", resp.StatusCode)
	}
	return nil
}
