package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// Client calls the remote chart analyzer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL. A nil httpClient gets
// a default with a generous timeout; the model call upstream can be slow.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Analyze submits one chart image with the caller identity attached and
// returns the decoded result. Exactly one request is issued per call.
// Every failure comes back as a *CodedError with a displayable message.
func (c *Client) Analyze(ctx context.Context, input Input, tgID int64) (*Result, error) {
	body, contentType, err := encodeForm(input, tgID)
	if err != nil {
		return nil, NewError(CodeValidation, GenericFailureMessage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, NewError(CodeValidation, GenericFailureMessage, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewError(CodeTransport, GenericFailureMessage, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewError(CodeTransport, GenericFailureMessage, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewError(CodeProtocol, extractDetail(raw), fmt.Errorf("analyze: status=%d", resp.StatusCode))
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, NewError(CodeProtocol, GenericFailureMessage, fmt.Errorf("analyze: decode body: %w", err))
	}
	if !res.Signal.Valid() {
		return nil, NewError(CodeProtocol, GenericFailureMessage, fmt.Errorf("analyze: unexpected signal %q", res.Signal))
	}
	if res.ExpiryMinutes <= 0 || res.Reasoning == "" {
		return nil, NewError(CodeProtocol, GenericFailureMessage, fmt.Errorf("analyze: incomplete result"))
	}
	return &res, nil
}

func encodeForm(input Input, tgID int64) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, input.Name))
	header.Set("Content-Type", input.MIME)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("analyze: create file part: %w", err)
	}
	if _, err := part.Write(input.Data); err != nil {
		return nil, "", fmt.Errorf("analyze: write file part: %w", err)
	}

	if err := w.WriteField("tg_id", strconv.FormatInt(tgID, 10)); err != nil {
		return nil, "", fmt.Errorf("analyze: write tg_id: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("analyze: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// extractDetail pulls the structured `detail` field out of an error body.
// Unparsable bodies and absent fields fall back to the generic message;
// this path never fails.
func extractDetail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return GenericFailureMessage
	}
	if strings.TrimSpace(body.Detail) == "" {
		return GenericFailureMessage
	}
	return body.Detail
}
