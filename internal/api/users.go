package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chart_agent/internal/userstore"
)

func registerUserHandlers(api huma.API, users UserStore) {
	type verifyInput struct {
		Body struct {
			TgID     int64  `json:"tg_id" doc:"Telegram user id"`
			PocketID string `json:"pocket_id" minLength:"1" doc:"Broker account id to bind"`
		}
	}
	type verifyOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "verify-user", Method: http.MethodPost, Path: "/api/v1/users/verify", Summary: "Register or rebind a user", Tags: []string{"Users"}},
		func(ctx context.Context, input *verifyInput) (*verifyOutput, error) {
			// A pocket id already seen in the cache belongs to somebody; only
			// the tg_id it is currently bound to may present it again.
			current, err := users.PocketID(ctx, input.Body.TgID)
			if err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			if current != input.Body.PocketID {
				seen, err := users.CacheContains(ctx, input.Body.PocketID)
				if err != nil {
					return nil, huma.Error500InternalServerError(err.Error())
				}
				if seen {
					return nil, huma.Error409Conflict("pocket id already used")
				}
			}
			if err := users.Verify(ctx, input.Body.TgID, input.Body.PocketID); err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			if err := users.AddToCache(ctx, input.Body.PocketID); err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			out := &verifyOutput{}
			out.Body.Status = "verified"
			return out, nil
		})

	type limitInput struct {
		TgID int64 `path:"tg_id"`
	}
	type limitOutput struct {
		Body userstore.LimitStatus
	}
	huma.Register(api, huma.Operation{OperationID: "get-user-limit", Method: http.MethodGet, Path: "/api/v1/users/{tg_id}/limit", Summary: "Check a user's daily analysis allowance", Tags: []string{"Users"}},
		func(ctx context.Context, input *limitInput) (*limitOutput, error) {
			status, err := users.CheckLimit(ctx, input.TgID)
			if err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			if !status.Known {
				return nil, huma.Error404NotFound("user not registered")
			}
			out := &limitOutput{}
			out.Body = status
			return out, nil
		})

	type verifiedInput struct {
		TgID int64 `path:"tg_id"`
	}
	type verifiedOutput struct {
		Body struct {
			Verified bool `json:"verified"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "is-user-verified", Method: http.MethodGet, Path: "/api/v1/users/{tg_id}/verified", Summary: "Check whether a user is registered", Tags: []string{"Users"}},
		func(ctx context.Context, input *verifiedInput) (*verifiedOutput, error) {
			ok, err := users.IsVerified(ctx, input.TgID)
			if err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			out := &verifiedOutput{}
			out.Body.Verified = ok
			return out, nil
		})

	type pocketInput struct {
		TgID int64 `path:"tg_id"`
	}
	type pocketOutput struct {
		Body struct {
			PocketID string `json:"pocket_id"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-user-pocket-id", Method: http.MethodGet, Path: "/api/v1/users/{tg_id}/pocket-id", Summary: "Look up the broker account bound to a user", Tags: []string{"Users"}},
		func(ctx context.Context, input *pocketInput) (*pocketOutput, error) {
			pocketID, err := users.PocketID(ctx, input.TgID)
			if err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			if pocketID == "" {
				return nil, huma.Error404NotFound("user not registered")
			}
			out := &pocketOutput{}
			out.Body.PocketID = pocketID
			return out, nil
		})
}
