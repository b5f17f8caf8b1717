package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// rawScreenshot captures the matching tab over a bare CDP WebSocket,
// skipping chromedp's session setup (SetAutoAttach, Page.Enable and
// friends) which causes some browser builds to exit when service workers
// get auto-attached.
func (c *Client) rawScreenshot(ctx context.Context) ([]byte, error) {
	wsURL, err := c.pageWSURL(ctx)
	if err != nil {
		return nil, err
	}

	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("capture: dial %s: %w", wsURL, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	req, err := json.Marshal(map[string]any{
		"id":     1,
		"method": "Page.captureScreenshot",
		"params": map[string]any{"format": "png"},
	})
	if err != nil {
		return nil, fmt.Errorf("capture: marshal command: %w", err)
	}
	if err := wsutil.WriteClientText(conn, req); err != nil {
		return nil, fmt.Errorf("capture: send command: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("capture: set deadline: %w", err)
		}
		raw, err := wsutil.ReadServerText(conn)
		if err != nil {
			return nil, fmt.Errorf("capture: read response: %w", err)
		}

		var msg struct {
			ID     int `json:"id"`
			Result struct {
				Data string `json:"data"`
			} `json:"result"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.ID != 1 {
			// Event traffic on the same socket; keep waiting.
			continue
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("capture: cdp error: %s", msg.Error.Message)
		}
		data, err := base64.StdEncoding.DecodeString(msg.Result.Data)
		if err != nil {
			return nil, fmt.Errorf("capture: decode screenshot: %w", err)
		}
		return data, nil
	}
}

// pageWSURL finds the debugger WebSocket of the first matching page tab
// via the browser's /json/list endpoint.
func (c *Client) pageWSURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cdpURL+"/json/list", nil)
	if err != nil {
		return "", fmt.Errorf("capture: list request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("capture: list tabs: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("capture: read tab list: %w", err)
	}

	var tabs []struct {
		Type                 string `json:"type"`
		URL                  string `json:"url"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(raw, &tabs); err != nil {
		return "", fmt.Errorf("capture: decode tab list: %w", err)
	}

	for _, tab := range tabs {
		if tab.Type == "page" && strings.Contains(tab.URL, c.tabFilter) && tab.WebSocketDebuggerURL != "" {
			return tab.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("capture: no tab matching %q", c.tabFilter)
}
