package product_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ProductStore/internal/product"
	"ProductStore/pkg/kit"
)

func newTS(t *testing.T, s *product.Server, deps product.HTTPDeps) *httptest.Server {
	t.Helper()

	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Service == "" {
		deps.Service = "products"
	}

	ts := httptest.NewServer(product.NewHandler(s, deps))
	t.Cleanup(ts.Close)
	return ts
}

func newSeededTS(t *testing.T) *httptest.Server {
	t.Helper()
	return newTS(t, &product.Server{Store: product.NewSeededMemStore(), Log: zap.NewNop()}, product.HTTPDeps{})
}

func do(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body=%s", raw)
	return v
}

func TestProducts_List(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodGet, ts.URL+"/api/products", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	list := decode[[]product.Product](t, raw)
	require.Len(t, list, 3)
	assert.Equal(t, "Tenis Nike Air", list[0].Name)
	assert.Equal(t, "Notebook", list[2].Name)
}

func TestProducts_GetByID(t *testing.T) {
	ts := newSeededTS(t)

	testCases := []struct {
		name         string
		id           string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "found",
			id:           "2",
			expectedCode: http.StatusOK,
			expectedBody: `{"id":2,"name":"Iphone","description":"Celulares","price":3928.99}`,
		},
		{
			name:         "not found",
			id:           "99",
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "non numeric id",
			id:           "abc",
			expectedCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := do(t, http.MethodGet, ts.URL+"/api/products/"+tc.id, nil, nil)
			assert.Equal(t, tc.expectedCode, resp.StatusCode)
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, string(raw))
			}
		})
	}
}

func TestProducts_NotFoundMessage(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodGet, ts.URL+"/api/products/99", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decode[kit.ErrorResponse](t, raw)
	assert.Equal(t, "product not found", body.Message)
	assert.NotEmpty(t, body.RequestID)
}

func TestProducts_CreateScenario(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodPost, ts.URL+"/api/products", map[string]any{
		"name":        "Mouse",
		"description": "Perifericos",
		"price":       49.90,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body=%s", raw)

	created := decode[product.Product](t, raw)
	assert.Equal(t, product.Product{ID: 4, Name: "Mouse", Description: "Perifericos", Price: 49.90}, created)

	_, raw = do(t, http.MethodGet, ts.URL+"/api/products", nil, nil)
	assert.Len(t, decode[[]product.Product](t, raw), 4)
}

func TestProducts_CreateValidation(t *testing.T) {
	ts := newSeededTS(t)

	testCases := []struct {
		name string
		body any
	}{
		{name: "malformed json", body: `{"name":`},
		{name: "price as text", body: `{"name":"a","description":"b","price":"cheap"}`},
		{name: "missing price", body: map[string]any{"name": "a", "description": "b"}},
		{name: "trailing data", body: `{"name":"a","description":"b","price":1}{}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := do(t, http.MethodPost, ts.URL+"/api/products", tc.body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body=%s", raw)
		})
	}

	_, raw := do(t, http.MethodGet, ts.URL+"/api/products", nil, nil)
	assert.Len(t, decode[[]product.Product](t, raw), 3)
}

func TestProducts_CreateMissingFieldsListed(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodPost, ts.URL+"/api/products", map[string]any{"name": "a"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Details struct {
			ValidationErrors map[string]string `json:"validation_errors"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body.Details.ValidationErrors, "description")
	assert.Contains(t, body.Details.ValidationErrors, "price")
	assert.NotContains(t, body.Details.ValidationErrors, "name")
}

// Zero and empty values are present values; only absence is rejected.
func TestProducts_CreateAcceptsZeroValues(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodPost, ts.URL+"/api/products", `{"name":"","description":"","price":-1,"extra":true}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body=%s", raw)
	assert.Equal(t, product.Product{ID: 4, Price: -1}, decode[product.Product](t, raw))
}

func TestProducts_Replace(t *testing.T) {
	ts := newSeededTS(t)

	next := product.Product{ID: 2, Name: "Galaxy", Description: "Celulares", Price: 2500}
	resp, raw := do(t, http.MethodPut, ts.URL+"/api/products/2", next, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body=%s", raw)

	rep := decode[product.Replacement](t, raw)
	assert.Equal(t, "Iphone", rep.Old.Name)
	assert.Equal(t, next, rep.New)

	_, raw = do(t, http.MethodGet, ts.URL+"/api/products/2", nil, nil)
	assert.Equal(t, next, decode[product.Product](t, raw))
}

func TestProducts_ReplaceMismatchedIDStoredVerbatim(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodPut, ts.URL+"/api/products/2", product.Product{ID: 9, Name: "Moved"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body=%s", raw)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/products/2", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = do(t, http.MethodGet, ts.URL+"/api/products/9", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Moved", decode[product.Product](t, raw).Name)
}

func TestProducts_ReplaceErrors(t *testing.T) {
	ts := newSeededTS(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/products/99", product.Product{ID: 99}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/products/2", map[string]any{"name": "a", "description": "b", "price": 1}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProducts_DeleteScenario(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodDelete, ts.URL+"/api/products/2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Iphone", decode[product.Product](t, raw).Name)

	_, raw = do(t, http.MethodGet, ts.URL+"/api/products", nil, nil)
	list := decode[[]product.Product](t, raw)
	require.Len(t, list, 2)
	for _, p := range list {
		assert.NotEqual(t, int64(2), p.ID)
	}

	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/products/2", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProducts_HelloAndRoot(t *testing.T) {
	ts := newSeededTS(t)

	resp, raw := do(t, http.MethodGet, ts.URL+"/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"service":"products"}`, string(raw))

	resp, raw = do(t, http.MethodGet, ts.URL+"/api/hello/Ana", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"hello":"Ana"}`, string(raw))

	resp, raw = do(t, http.MethodGet, ts.URL+"/api/ola/Ana", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"Hello":"Ana"}`, string(raw))
}

type failingStore struct{ product.Store }

var errBackend = errors.New("backend down")

func (failingStore) Ping(context.Context) error { return errBackend }

func (failingStore) List(context.Context) ([]product.Product, error) { return nil, errBackend }

func TestProducts_BackendFailures(t *testing.T) {
	ts := newTS(t, &product.Server{Store: failingStore{}}, product.HTTPDeps{})

	resp, _ := do(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, raw := do(t, http.MethodGet, ts.URL+"/api/products", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "server error", decode[kit.ErrorResponse](t, raw).Message)

	resp, _ = do(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProducts_MutationsRateLimited(t *testing.T) {
	s := &product.Server{
		Store:   product.NewSeededMemStore(),
		Limiter: kit.NewIPRateLimiter(0.001, 1),
	}
	ts := newTS(t, s, product.HTTPDeps{})

	body := map[string]any{"name": "a", "description": "b", "price": 1}

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/products", body, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/products", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/products", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProducts_RateLimitFromDeps(t *testing.T) {
	ts := newTS(t, &product.Server{Store: product.NewSeededMemStore()}, product.HTTPDeps{
		RateLimit: product.RateLimitDeps{RPS: 0.001, Burst: 1},
	})

	body := map[string]any{"name": "a", "description": "b", "price": 1}

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/products", body, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/products", body, map[string]string{"X-Forwarded-For": "203.0.113.50"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestProducts_MetricsEndpoint(t *testing.T) {
	const token = "metrics-token-0123456789"

	reg := prometheus.NewRegistry()
	ts := newTS(t, &product.Server{Store: product.NewSeededMemStore()}, product.HTTPDeps{
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   token,
	})
	auth := map[string]string{"Authorization": "Bearer " + token}

	resp, _ := do(t, http.MethodGet, ts.URL+"/metrics", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := do(t, http.MethodGet, ts.URL+"/metrics", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "products_stored 3\n")

	do(t, http.MethodGet, ts.URL+"/api/products/1", nil, nil)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/products", map[string]any{"name": "a", "description": "b", "price": 1}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, raw = do(t, http.MethodGet, ts.URL+"/metrics", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `http_requests_total{method="GET",path="/api/products/{id}",service="products",status="200"} 1`)
	assert.Contains(t, string(raw), `products_store_operations_total{op="get",result="ok"} 1`)
	assert.Contains(t, string(raw), "products_stored 4\n")
}
