package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/handler"
)

type greetRequest struct {
	Name  string `json:"name"`
	Times int    `query:"times"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var got handler.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	return got
}

func TestWrap(t *testing.T) {
	t.Parallel()

	h := handler.HandlerFunc[handler.Context, greetRequest](func(ctx handler.Context, req greetRequest) handler.Response {
		return handler.JSON(map[string]any{"name": req.Name, "times": req.Times})
	})

	t.Run("binds body and query", func(t *testing.T) {
		t.Parallel()
		fn := handler.Wrap(h, handler.WithBinders[handler.Context, greetRequest](binder.Query(), binder.JSON()))

		r := httptest.NewRequest(http.MethodPost, "/?times=3", strings.NewReader(`{"name":"ann"}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		fn(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		got := decode(t, w)
		assert.True(t, got.Success)
		assert.Equal(t, map[string]any{"name": "ann", "times": float64(3)}, got.Data)
	})

	t.Run("skips JSON binder without body", func(t *testing.T) {
		t.Parallel()
		fn := handler.Wrap(h, handler.WithBinders[handler.Context, greetRequest](binder.JSON()))

		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bind error goes to error handler", func(t *testing.T) {
		t.Parallel()
		var captured error
		fn := handler.Wrap(h,
			handler.WithBinders[handler.Context, greetRequest](binder.Query()),
			handler.WithErrorHandler[handler.Context, greetRequest](func(ctx handler.Context, err error) {
				captured = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)

		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/?times=x", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.ErrorIs(t, captured, binder.ErrInvalidQuery)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var captured error
		fn := handler.Wrap(
			handler.HandlerFunc[handler.Context, greetRequest](func(handler.Context, greetRequest) handler.Response { return nil }),
			handler.WithErrorHandler[handler.Context, greetRequest](func(ctx handler.Context, err error) { captured = err }),
		)
		fn(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, captured, handler.ErrNilResponse)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, greetRequest] {
			return func(next handler.HandlerFunc[handler.Context, greetRequest]) handler.HandlerFunc[handler.Context, greetRequest] {
				return func(ctx handler.Context, req greetRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		fn := handler.Wrap(h, handler.WithDecorators(mark("outer"), mark("inner")))
		fn(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})

	t.Run("default error handler writes envelope", func(t *testing.T) {
		t.Parallel()
		fn := handler.Wrap(handler.HandlerFunc[handler.Context, greetRequest](func(handler.Context, greetRequest) handler.Response {
			return handler.JSONError(handler.ErrNotFound)
		}))
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		got := decode(t, w)
		assert.False(t, got.Success)
		require.NotNil(t, got.Error)
		assert.Equal(t, "not_found", got.Error.Code)
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	require.NoError(t, handler.JSONError(errors.New("db exploded")).Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	got := decode(t, w)
	assert.Equal(t, "internal_error", got.Error.Code)
	assert.NotContains(t, w.Body.String(), "db exploded")
}

func TestJSONMetaAndStatus(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	resp := handler.JSON([]int{1}, handler.WithJSONStatus(http.StatusCreated), handler.WithJSONMeta(map[string]any{"next": "abc"}))
	require.NoError(t, resp.Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusCreated, w.Code)
	got := decode(t, w)
	assert.Equal(t, "abc", got.Meta["next"])
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	require.NoError(t, handler.Empty().Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
