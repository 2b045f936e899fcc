package notifications

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/svc/notify"
)

// TokenActions performs actions granted by signed links.
type TokenActions interface {
	VerifyToken(ctx context.Context, tok string) (notify.Claims, error)
	PerformViaToken(ctx context.Context, tok string, data map[string]any) (notify.ActionResult, error)
	PerformBatchViaToken(ctx context.Context, tok string, data map[string]any) (notify.BatchActionResult, error)
}

// ResultPages renders the confirmation page browsers see after a link click.
type ResultPages interface {
	ActionResult(title, message string) templ.Component
}

// ActionLinksHandler serves the unauthenticated action links embedded in
// delivered messages. POST covers one-click unsubscribe (RFC 8058).
type ActionLinksHandler struct {
	actions      TokenActions
	pages        ResultPages
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewActionLinksHandler(actions TokenActions, pages ResultPages, errorHandler handler.ErrorHandler[handler.Context]) *ActionLinksHandler {
	return &ActionLinksHandler{actions: actions, pages: pages, errorHandler: errorHandler}
}

func (h *ActionLinksHandler) Mount(r chi.Router) {
	perform := handler.Wrap(h.perform,
		handler.WithBinders[handler.Context, TokenActionRequest](binder.Path(chi.URLParam), binder.Query(), optionalJSON()),
		handler.WithErrorHandler[handler.Context, TokenActionRequest](h.errorHandler),
	)
	r.Get("/actions/{type}", perform)
	r.Post("/actions/{type}", perform)
}

// TokenActionRequest carries a signed action link.
type TokenActionRequest struct {
	ActionType string `path:"type" json:"-"`
	Token      string `query:"token" json:"-"`

	Data map[string]any `json:"data,omitempty"`
}

func (h *ActionLinksHandler) perform(ctx handler.Context, req TokenActionRequest) handler.Response {
	if req.Token == "" {
		return handler.Error(validationError("token", "is required"))
	}
	claims, err := h.actions.VerifyToken(ctx, req.Token)
	if err != nil {
		return handler.Error(err)
	}
	if claims.ActionType != req.ActionType {
		return handler.Error(ErrActionMismatch)
	}

	if claims.IsBatch() {
		res, err := h.actions.PerformBatchViaToken(ctx, req.Token, req.Data)
		if err != nil {
			return handler.Error(err)
		}
		return h.respond(ctx.Request(), res, claims.ActionType, res.Succeeded, res.Failed)
	}

	res, err := h.actions.PerformViaToken(ctx, req.Token, req.Data)
	if err != nil {
		return handler.Error(err)
	}
	return h.respond(ctx.Request(), res, claims.ActionType, 1, 0)
}

func (h *ActionLinksHandler) respond(r *http.Request, data any, actionType string, succeeded, failed int) handler.Response {
	if h.pages == nil || !prefersHTML(r) {
		return handler.JSON(data)
	}
	title, message := resultText(actionType, succeeded, failed)
	return handler.Templ(h.pages.ActionResult(title, message))
}

func resultText(actionType string, succeeded, failed int) (string, string) {
	var title, message string
	switch actionType {
	case notify.ActionUnsubscribe:
		title, message = "Unsubscribed", "You will no longer receive these notifications."
	case notify.ActionMarkRead:
		title, message = "Marked as read", "The notification was marked as read."
	default:
		title = "Done"
		message = fmt.Sprintf("%q was applied.", strings.ReplaceAll(actionType, "_", " "))
	}
	if failed > 0 {
		title = "Partially done"
		message = fmt.Sprintf("Applied to %d notifications, %d could not be updated.", succeeded, failed)
	}
	return title, message
}

func prefersHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

// optionalJSON binds JSON bodies and skips everything else, such as the
// form body of a one-click unsubscribe.
func optionalJSON() handler.Bind {
	bind := binder.JSON()
	return func(r *http.Request, v any) error {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" {
			return binder.ErrBinderNotApplicable
		}
		return bind(r, v)
	}
}
