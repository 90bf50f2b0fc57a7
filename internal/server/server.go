package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"flowescrow/internal/escrow"
	"flowescrow/internal/registry"
	"flowescrow/internal/repo"
	"flowescrow/internal/token"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *escrow.Engine
	Registry registry.Registry
	Ledger   token.Ledger
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_status"`
	Message string         `json:"message" example:"invalid task status"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Flowescrow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Flowescrow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerFee(group, cfg.Engine)
	registerAdmins(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerArtifacts(group, cfg.Registry)
	registerBalances(group, cfg.Ledger)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine sentinels onto the error envelope. The mapping is
// exhaustive over the escrow error set so clients can switch on codes.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, escrow.ErrTaskNotFound):
		return newAPIError(http.StatusNotFound, "task_not_found", err.Error(), nil)
	case errors.Is(err, escrow.ErrUnauthorized):
		return newAPIError(http.StatusForbidden, "unauthorized_caller", err.Error(), nil)
	case errors.Is(err, escrow.ErrInvalidStatus):
		return newAPIError(http.StatusConflict, "invalid_status", err.Error(), nil)
	case errors.Is(err, escrow.ErrAlreadyPaid):
		return newAPIError(http.StatusConflict, "already_paid", err.Error(), nil)
	case errors.Is(err, escrow.ErrWorkAlreadyStarted):
		return newAPIError(http.StatusConflict, "work_already_started", err.Error(), nil)
	case errors.Is(err, escrow.ErrReentrantCall):
		return newAPIError(http.StatusConflict, "reentrant_call", err.Error(), nil)
	case errors.Is(err, escrow.ErrExceedsBudget):
		return newAPIError(http.StatusUnprocessableEntity, "exceeds_budget", err.Error(), nil)
	case errors.Is(err, escrow.ErrTransferFailed):
		return newAPIError(http.StatusUnprocessableEntity, "transfer_failed", err.Error(), nil)
	case errors.Is(err, escrow.ErrInvalidAmount):
		return newAPIError(http.StatusBadRequest, "invalid_amount", err.Error(), nil)
	case errors.Is(err, escrow.ErrFeeTooHigh):
		return newAPIError(http.StatusBadRequest, "fee_too_high", err.Error(), nil)
	case errors.Is(err, escrow.ErrInvalidAddress):
		return newAPIError(http.StatusBadRequest, "invalid_address", err.Error(), nil)
	case errors.Is(err, registry.ErrExists):
		return newAPIError(http.StatusConflict, "artifact_exists", err.Error(), nil)
	case errors.Is(err, registry.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Flowescrow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e *escrow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Escrow status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		counts, err := e.Repo.CountTasksByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		policy, err := e.FeePolicy(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"task_counts":   counts,
			"fee_bps":       policy.Bps,
			"fee_recipient": policy.Recipient,
		}}, nil
	})
}

func registerTasks(api huma.API, e *escrow.Engine) {
	type taskPath struct {
		TaskID int64 `path:"task_id" minimum:"1"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "fund-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Fund a task",
		Description:   "Escrows the caller's deposit and creates a new task in funded state.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Amount int64 `json:"amount" minimum:"1" doc:"Deposit in the smallest asset unit"`
		} `json:"body"`
	}) (*struct {
		Body taskPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, err := e.Fund(ctx, caller, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskPayload `json:"body"`
		}{Body: toTaskPayload(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Client string `query:"client" doc:"Filter by funding client"`
		Status string `query:"status" enum:",funded,in_progress,completed,cancelled,disputed,resolved"`
		Limit  int    `query:"limit" default:"50" maximum:"500"`
		Cursor int64  `query:"cursor" doc:"Return tasks with id below this value"`
	}) (*struct {
		Body []taskPayload `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Client:   input.Client,
			Status:   input.Status,
			Limit:    input.Limit,
			CursorID: input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]taskPayload, 0, len(items))
		for _, t := range items {
			out = append(out, toTaskPayload(t))
		}
		return &struct {
			Body []taskPayload `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body taskPayload `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskPayload `json:"body"`
		}{Body: toTaskPayload(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-subtask-payment",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/payments/{subtask_index}",
		Summary:     "Get subtask payment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID       int64 `path:"task_id" minimum:"1"`
		SubtaskIndex int64 `path:"subtask_index" minimum:"0"`
	}) (*struct {
		Body subtaskPaymentPayload `json:"body"`
	}, error) {
		p, err := e.GetSubtaskPayment(ctx, input.TaskID, input.SubtaskIndex)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body subtaskPaymentPayload `json:"body"`
		}{Body: toSubtaskPaymentPayload(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-subtask",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/approve",
		Summary:     "Approve a subtask",
		Description: "Releases a slice of the escrowed budget to the worker, net of the platform fee.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id" minimum:"1"`
		Body   struct {
			SubtaskIndex int64  `json:"subtask_index" minimum:"0"`
			Worker       string `json:"worker" minLength:"1"`
			Amount       int64  `json:"amount" minimum:"1"`
		} `json:"body"`
	}) (*struct {
		Body subtaskPaymentPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := e.ApproveSubtask(ctx, caller, input.TaskID, input.Body.SubtaskIndex, input.Body.Worker, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetSubtaskPayment(ctx, input.TaskID, input.Body.SubtaskIndex)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body subtaskPaymentPayload `json:"body"`
		}{Body: toSubtaskPaymentPayload(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/complete",
		Summary:     "Complete a task",
		Description: "Closes the task and refunds any unreleased remainder to the client.",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body taskPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CompleteTask(ctx, caller, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskPayload `json:"body"`
		}{Body: toTaskPayload(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "raise-dispute",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/dispute",
		Summary:     "Raise a dispute",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body taskPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RaiseDispute(ctx, caller, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskPayload `json:"body"`
		}{Body: toTaskPayload(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-dispute",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/resolve",
		Summary:     "Resolve a dispute",
		Description: "Admin-only split of the remaining escrow between the winner and the client.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id" minimum:"1"`
		Body   struct {
			Winner       string `json:"winner" minLength:"1"`
			WinnerAmount int64  `json:"winner_amount" minimum:"0"`
		} `json:"body"`
	}) (*struct {
		Body taskPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ResolveDispute(ctx, caller, input.TaskID, input.Body.Winner, input.Body.WinnerAmount); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskPayload `json:"body"`
		}{Body: toTaskPayload(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/cancel",
		Summary:     "Cancel a task",
		Description: "Refunds the full escrow to the client. Allowed only before any release.",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body taskPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CancelTask(ctx, caller, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskPayload `json:"body"`
		}{Body: toTaskPayload(t)}, nil
	})
}

func registerFee(api huma.API, e *escrow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-fee",
		Method:      http.MethodGet,
		Path:        "/fee",
		Summary:     "Get fee policy",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body feePolicyPayload `json:"body"`
	}, error) {
		p, err := e.FeePolicy(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body feePolicyPayload `json:"body"`
		}{Body: toFeePolicyPayload(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-fee",
		Method:      http.MethodPut,
		Path:        "/fee",
		Summary:     "Set fee basis points",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Bps int64 `json:"bps" minimum:"0" maximum:"2000"`
		} `json:"body"`
	}) (*struct {
		Body feePolicyPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetFee(ctx, caller, input.Body.Bps); err != nil {
			return nil, handleError(err)
		}
		p, err := e.FeePolicy(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body feePolicyPayload `json:"body"`
		}{Body: toFeePolicyPayload(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-fee-recipient",
		Method:      http.MethodPut,
		Path:        "/fee/recipient",
		Summary:     "Set fee recipient",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Recipient string `json:"recipient" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body feePolicyPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetFeeRecipient(ctx, caller, input.Body.Recipient); err != nil {
			return nil, handleError(err)
		}
		p, err := e.FeePolicy(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body feePolicyPayload `json:"body"`
		}{Body: toFeePolicyPayload(p)}, nil
	})
}

func registerAdmins(api huma.API, e *escrow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-admins",
		Method:      http.MethodGet,
		Path:        "/admins",
		Summary:     "List admins",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []map[string]string `json:"body"`
	}, error) {
		items, err := e.Repo.ListAdmins(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]map[string]string, 0, len(items))
		for _, a := range items {
			out = append(out, map[string]string{
				"account":    a.Account,
				"granted_by": a.GrantedBy,
				"created_at": a.CreatedAt,
			})
		}
		return &struct {
			Body []map[string]string `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "grant-admin",
		Method:        http.MethodPost,
		Path:          "/admins",
		Summary:       "Grant admin",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Account string `json:"account" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantAdmin(ctx, caller, input.Body.Account); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"account": input.Body.Account, "granted_by": caller}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-admin",
		Method:      http.MethodDelete,
		Path:        "/admins/{account}",
		Summary:     "Revoke admin",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Account string `path:"account"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAdmin(ctx, caller, input.Account); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"account": input.Account, "revoked_by": caller}}, nil
	})
}

func registerEvents(api huma.API, e *escrow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
		Description: "Newest first. Use the smallest returned id as the next cursor.",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50" maximum:"500"`
		Cursor int64  `query:"cursor"`
		Type   string `query:"type"`
		TaskID int64  `query:"task_id"`
	}) (*struct {
		Body []eventPayload `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Cursor, input.Type, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]eventPayload, 0, len(items))
		for _, evt := range items {
			out = append(out, toEventPayload(evt))
		}
		return &struct {
			Body []eventPayload `json:"body"`
		}{Body: out}, nil
	})
}

func registerArtifacts(api huma.API, reg registry.Registry) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-artifact",
		Method:        http.MethodPost,
		Path:          "/artifacts",
		Summary:       "Register an artifact",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID           string   `json:"id,omitempty" doc:"Optional caller-chosen identifier; generated when empty"`
			ContentHash  string   `json:"content_hash" minLength:"1"`
			Contributors []string `json:"contributors,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body artifactPayload `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := reg.Register(ctx, caller, input.Body.ID, input.Body.ContentHash, input.Body.Contributors)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body artifactPayload `json:"body"`
		}{Body: toArtifactPayload(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Get artifact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
	}) (*struct {
		Body artifactPayload `json:"body"`
	}, error) {
		a, err := reg.Get(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body artifactPayload `json:"body"`
		}{Body: toArtifactPayload(a)}, nil
	})
}

func registerBalances(api huma.API, ledger token.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "get-balance",
		Method:      http.MethodGet,
		Path:        "/accounts/{account}/balance",
		Summary:     "Get account balance",
	}, func(ctx context.Context, input *struct {
		Account string `path:"account"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		balance, err := ledger.Balance(ctx, input.Account)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"account": input.Account, "balance": balance}}, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	if !cfg.DevAuth {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a development token",
		Description: "Enabled only when dev auth is configured. Never expose in production.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Account string `json:"account" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		tok, err := issueDevToken(input.Body.Account, cfg.JWTSecret, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": tok, "account": input.Body.Account}}, nil
	})
}
