package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"testing"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
	"github.com/dgnsrekt/chart_agent/internal/relay"
	"github.com/dgnsrekt/chart_agent/internal/userstore"
)

type fakeVision struct {
	res *analyze.Result
	err error
}

func (f *fakeVision) AnalyzeChart(ctx context.Context, mimeType string, data []byte) (*analyze.Result, error) {
	return f.res, f.err
}

type fakeUsers struct {
	status     userstore.LimitStatus
	statusErr  error
	increments int
	bindings   map[int64]string
	cache      map[string]bool
}

func (f *fakeUsers) CheckLimit(ctx context.Context, tgID int64) (userstore.LimitStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeUsers) IncrementUsage(ctx context.Context, tgID int64) error {
	f.increments++
	return nil
}

func (f *fakeUsers) Verify(ctx context.Context, tgID int64, pocketID string) error {
	if f.bindings == nil {
		f.bindings = make(map[int64]string)
	}
	f.bindings[tgID] = pocketID
	return nil
}

func (f *fakeUsers) IsVerified(ctx context.Context, tgID int64) (bool, error) {
	_, ok := f.bindings[tgID]
	return ok, nil
}

func (f *fakeUsers) PocketID(ctx context.Context, tgID int64) (string, error) {
	return f.bindings[tgID], nil
}

func (f *fakeUsers) CacheContains(ctx context.Context, pocketID string) (bool, error) {
	return f.cache[pocketID], nil
}

func (f *fakeUsers) AddToCache(ctx context.Context, pocketID string) error {
	if f.cache == nil {
		f.cache = make(map[string]bool)
	}
	f.cache[pocketID] = true
	return nil
}

func newTestServer(t *testing.T, an Analyzer, users UserStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(an, users, relay.NewBroker(), 10<<20))
	t.Cleanup(srv.Close)
	return srv
}

func postChart(t *testing.T, url string, mimeType string, fileData []byte, tgID string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="chart.png"`)
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(fileData); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if tgID != "" {
		if err := w.WriteField("tg_id", tgID); err != nil {
			t.Fatalf("write tg_id: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	resp, err := http.Post(url+"/analyze", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	return body.Detail
}

func TestAnalyzeEndpointSuccess(t *testing.T) {
	vision := &fakeVision{res: &analyze.Result{Signal: analyze.SignalLong, ExpiryMinutes: 2, Reasoning: "пробой сопротивления"}}
	users := &fakeUsers{status: userstore.LimitStatus{Known: true, Allowed: true, Remaining: 5}}
	srv := newTestServer(t, vision, users)

	resp := postChart(t, srv.URL, "image/png", []byte{0x89, 0x50}, "42")
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}

	var res analyze.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got, want := res.Signal, analyze.SignalLong; got != want {
		t.Fatalf("signal = %q; want %q", got, want)
	}
	if res.RemainingLimit == nil || *res.RemainingLimit != 4 {
		t.Fatalf("remaining_limit = %v; want 4", res.RemainingLimit)
	}
	if got, want := users.increments, 1; got != want {
		t.Fatalf("usage increments = %d; want %d", got, want)
	}
}

func TestAnalyzeEndpointRejectsNonImage(t *testing.T) {
	srv := newTestServer(t, &fakeVision{}, &fakeUsers{})

	resp := postChart(t, srv.URL, "text/plain", []byte("not an image"), "42")
	if got, want := resp.StatusCode, http.StatusBadRequest; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if got, want := decodeDetail(t, resp), detailImageRequired; got != want {
		t.Fatalf("detail = %q; want %q", got, want)
	}
}

func TestAnalyzeEndpointRejectsBadTgID(t *testing.T) {
	srv := newTestServer(t, &fakeVision{}, &fakeUsers{})

	resp := postChart(t, srv.URL, "image/png", []byte{1}, "")
	if got, want := resp.StatusCode, http.StatusBadRequest; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if got, want := decodeDetail(t, resp), detailBadTgID; got != want {
		t.Fatalf("detail = %q; want %q", got, want)
	}
}

func TestAnalyzeEndpointUnknownUser(t *testing.T) {
	users := &fakeUsers{status: userstore.LimitStatus{Known: false}}
	srv := newTestServer(t, &fakeVision{}, users)

	resp := postChart(t, srv.URL, "image/png", []byte{1}, "42")
	if got, want := resp.StatusCode, http.StatusForbidden; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if got, want := decodeDetail(t, resp), detailUserNotFound; got != want {
		t.Fatalf("detail = %q; want %q", got, want)
	}
}

func TestAnalyzeEndpointLimitReached(t *testing.T) {
	users := &fakeUsers{status: userstore.LimitStatus{Known: true, Allowed: false}}
	srv := newTestServer(t, &fakeVision{}, users)

	resp := postChart(t, srv.URL, "image/png", []byte{1}, "42")
	if got, want := resp.StatusCode, http.StatusTooManyRequests; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if got, want := decodeDetail(t, resp), detailLimitReached; got != want {
		t.Fatalf("detail = %q; want %q", got, want)
	}
}

func TestAnalyzeEndpointModelFailure(t *testing.T) {
	vision := &fakeVision{err: errors.New("model timeout")}
	users := &fakeUsers{status: userstore.LimitStatus{Known: true, Allowed: true, Remaining: 5}}
	srv := newTestServer(t, vision, users)

	resp := postChart(t, srv.URL, "image/png", []byte{1}, "42")
	if got, want := resp.StatusCode, http.StatusBadGateway; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if got, want := decodeDetail(t, resp), detailModelFailure; got != want {
		t.Fatalf("detail = %q; want %q", got, want)
	}
	if got, want := users.increments, 0; got != want {
		t.Fatalf("usage increments = %d; want %d (no charge for failed analysis)", got, want)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeVision{}, &fakeUsers{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(body, []byte(`"ok"`)) {
		t.Fatalf("body = %s; want status ok", body)
	}
}

func postVerify(t *testing.T, url string, tgID int64, pocketID string) *http.Response {
	t.Helper()
	body := `{"tg_id":` + strconv.FormatInt(tgID, 10) + `,"pocket_id":"` + pocketID + `"}`
	resp, err := http.Post(url+"/api/v1/users/verify", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post verify: %v", err)
	}
	return resp
}

func TestVerifyBindsAndCachesPocketID(t *testing.T) {
	users := &fakeUsers{}
	srv := newTestServer(t, &fakeVision{}, users)

	resp := postVerify(t, srv.URL, 42, "pocket-abc")
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if got, want := users.bindings[42], "pocket-abc"; got != want {
		t.Fatalf("binding = %q; want %q", got, want)
	}
	if !users.cache["pocket-abc"] {
		t.Fatal("expected pocket id recorded in cache after verify")
	}
}

func TestVerifyRejectsPocketIDBoundElsewhere(t *testing.T) {
	users := &fakeUsers{
		bindings: map[int64]string{7: "pocket-abc"},
		cache:    map[string]bool{"pocket-abc": true},
	}
	srv := newTestServer(t, &fakeVision{}, users)

	resp := postVerify(t, srv.URL, 42, "pocket-abc")
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusConflict; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	if _, bound := users.bindings[42]; bound {
		t.Fatal("conflicting verify must not bind the user")
	}
}

func TestVerifyIsIdempotentForCurrentBinding(t *testing.T) {
	users := &fakeUsers{
		bindings: map[int64]string{42: "pocket-abc"},
		cache:    map[string]bool{"pocket-abc": true},
	}
	srv := newTestServer(t, &fakeVision{}, users)

	resp := postVerify(t, srv.URL, 42, "pocket-abc")
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
}

func TestPocketIDEndpoint(t *testing.T) {
	users := &fakeUsers{bindings: map[int64]string{42: "pocket-abc"}}
	srv := newTestServer(t, &fakeVision{}, users)

	resp, err := http.Get(srv.URL + "/api/v1/users/42/pocket-id")
	if err != nil {
		t.Fatalf("get pocket id: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
	var body struct {
		PocketID string `json:"pocket_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got, want := body.PocketID, "pocket-abc"; got != want {
		t.Fatalf("pocket_id = %q; want %q", got, want)
	}

	missing, err := http.Get(srv.URL + "/api/v1/users/99/pocket-id")
	if err != nil {
		t.Fatalf("get pocket id: %v", err)
	}
	defer func() {
		_ = missing.Body.Close()
	}()
	if got, want := missing.StatusCode, http.StatusNotFound; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
}

func TestRootEndpointListsUserRoutes(t *testing.T) {
	srv := newTestServer(t, &fakeVision{}, &fakeUsers{})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var body struct {
		Endpoints []string `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	listed := make(map[string]bool, len(body.Endpoints))
	for _, ep := range body.Endpoints {
		listed[ep] = true
	}
	for _, want := range []string{
		"/analyze",
		"/api/v1/users/verify",
		"/api/v1/users/{tg_id}/limit",
		"/api/v1/users/{tg_id}/verified",
		"/api/v1/users/{tg_id}/pocket-id",
		"/api/v1/events",
	} {
		if !listed[want] {
			t.Fatalf("endpoints %v missing %q", body.Endpoints, want)
		}
	}
}

func TestUserLimitEndpointUnknownUserIs404(t *testing.T) {
	users := &fakeUsers{status: userstore.LimitStatus{Known: false}}
	srv := newTestServer(t, &fakeVision{}, users)

	resp, err := http.Get(srv.URL + "/api/v1/users/" + strconv.Itoa(42) + "/limit")
	if err != nil {
		t.Fatalf("get limit: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if got, want := resp.StatusCode, http.StatusNotFound; got != want {
		t.Fatalf("status = %d; want %d", got, want)
	}
}
