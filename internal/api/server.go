package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/navtally/internal/engine"
	"github.com/dgnsrekt/navtally/internal/push"
	"github.com/dgnsrekt/navtally/internal/snapshot"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the engine surface exposed to the UI collaborator.
type Service interface {
	GetState(ctx context.Context, tabID string) (snapshot.Snapshot, error)
	ManualReset(ctx context.Context, tabID string) (snapshot.Snapshot, error)
	SetTracking(ctx context.Context, origin string, enabled bool) (engine.TrackingResult, error)
	TabActivated(ctx context.Context, tabID string) error
	ListTabs(ctx context.Context) ([]snapshot.Snapshot, error)
}

// NewServer builds the HTTP handler: typed JSON endpoints for the UI message
// family plus the WebSocket event stream.
func NewServer(svc Service, broker *push.Broker, apiToken string) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(tokenAuth(apiToken))

	cfg := huma.DefaultConfig("Navtally API", "1.0.0")
	api := humachi.New(router, cfg)

	registerHandlers(api, svc)

	router.Get("/api/v1/events", push.Handler(broker))

	return router
}

func registerHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type stateInput struct {
		TabID string `query:"tab_id" doc:"Target tab. Omit to use the active tab."`
	}
	type stateOutput struct {
		Body snapshot.Snapshot
	}
	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Current navigation state snapshot", Tags: []string{"State"}},
		func(ctx context.Context, input *stateInput) (*stateOutput, error) {
			snap, err := svc.GetState(ctx, input.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: snap}, nil
		})

	type resetInput struct {
		Body struct {
			TabID string `json:"tab_id,omitempty" doc:"Target tab. Omit to use the active tab."`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "manual-reset", Method: http.MethodPost, Path: "/api/v1/state/reset", Summary: "Force a fresh baseline", Tags: []string{"State"}},
		func(ctx context.Context, input *resetInput) (*stateOutput, error) {
			snap, err := svc.ManualReset(ctx, input.Body.TabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: snap}, nil
		})

	type trackingInput struct {
		Body struct {
			Origin  string `json:"origin" doc:"Origin as scheme://host"`
			Enabled bool   `json:"enabled"`
		}
	}
	type trackingOutput struct {
		Body engine.TrackingResult
	}
	huma.Register(api, huma.Operation{OperationID: "set-tracking", Method: http.MethodPut, Path: "/api/v1/tracking", Summary: "Grant or revoke tracking for an origin", Tags: []string{"Tracking"}},
		func(ctx context.Context, input *trackingInput) (*trackingOutput, error) {
			result, err := svc.SetTracking(ctx, input.Body.Origin, input.Body.Enabled)
			if err != nil {
				return nil, mapErr(err)
			}
			return &trackingOutput{Body: result}, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []snapshot.Snapshot `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List tracked tabs", Tags: []string{"State"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type activatedInput struct {
		TabID string `path:"tab_id"`
	}
	type activatedOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "tab-activated", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/activated", Summary: "Report tab focus", Tags: []string{"State"}},
		func(ctx context.Context, input *activatedInput) (*activatedOutput, error) {
			if err := svc.TabActivated(ctx, input.TabID); err != nil {
				return nil, mapErr(err)
			}
			out := &activatedOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *engine.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case engine.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case engine.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case engine.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
