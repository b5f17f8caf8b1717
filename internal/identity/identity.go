// Package identity resolves the caller identity from the embedding host
// container. Outside the Telegram mini-app bridge there is no identity and
// resolution fails closed; nothing here ever defaults to a synthetic user.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dgnsrekt/chart_agent/internal/analyze"
)

// PreconditionMessage is the fixed displayable message for a missing host
// session. It is deliberately absent from the quota marker list so it
// surfaces inline, not as a native alert.
const PreconditionMessage = "not running inside Telegram host container"

// Bridge is the injected capability surface of the host container. A no-op
// implementation stands in outside the Telegram runtime so the controller
// never probes for host features at call sites.
type Bridge interface {
	// SessionUserID returns the ambient session identity, if any.
	SessionUserID() (int64, bool)
	// ShowAlert raises a native host-level alert.
	ShowAlert(ctx context.Context, message string) error
	// Ready signals the host that the mini-app finished loading.
	Ready()
	// Expand asks the host to expand the viewport.
	Expand()
}

// Resolve reads the session identity from the bridge. It must be called at
// submission time, not at load time: the host bridge may initialise late.
func Resolve(b Bridge) (int64, error) {
	if b == nil {
		return 0, analyze.NewError(analyze.CodePrecondition, PreconditionMessage, nil)
	}
	id, ok := b.SessionUserID()
	if !ok || id == 0 {
		return 0, analyze.NewError(analyze.CodePrecondition, PreconditionMessage, nil)
	}
	return id, nil
}

// NoopBridge is the bridge used outside the host container. It exposes no
// identity and swallows host-only actions.
type NoopBridge struct{}

func (NoopBridge) SessionUserID() (int64, bool)            { return 0, false }
func (NoopBridge) ShowAlert(context.Context, string) error { return nil }
func (NoopBridge) Ready()                                  {}
func (NoopBridge) Expand()                                 {}

// StaticBridge carries a fixed identity. Used by the CLI and in tests.
type StaticBridge struct {
	ID int64
}

func (b StaticBridge) SessionUserID() (int64, bool)          { return b.ID, b.ID != 0 }
func (StaticBridge) ShowAlert(context.Context, string) error { return nil }
func (StaticBridge) Ready()                                  {}
func (StaticBridge) Expand()                                 {}

// InitDataBridge resolves the identity from a raw Telegram WebApp initData
// string. Parsing happens on every SessionUserID call so a bridge created
// before the host finished initialising still resolves correctly later.
type InitDataBridge struct {
	Raw string
}

func (b InitDataBridge) SessionUserID() (int64, bool) {
	id, err := ParseInitData(b.Raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (InitDataBridge) ShowAlert(context.Context, string) error { return nil }
func (InitDataBridge) Ready()                                  {}
func (InitDataBridge) Expand()                                 {}

// ParseInitData extracts the session user id from a Telegram WebApp
// initData query string (the `user` field carries a JSON object).
func ParseInitData(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("initdata: empty")
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return 0, fmt.Errorf("initdata: parse query: %w", err)
	}
	userField := values.Get("user")
	if userField == "" {
		return 0, fmt.Errorf("initdata: no user field")
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userField), &user); err != nil {
		return 0, fmt.Errorf("initdata: decode user: %w", err)
	}
	if user.ID == 0 {
		return 0, fmt.Errorf("initdata: user id missing")
	}
	return user.ID, nil
}
