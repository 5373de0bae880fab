package metricsserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/configtypes"
)

type mockMetricsHandler struct {
	called bool
}

func (m *mockMetricsHandler) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.called = true
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("# HELP test_metric A test metric\n# TYPE test_metric counter\ntest_metric 42\n")
}

func enabledConfig(listen string) configtypes.MetricsConfig {
	return configtypes.MetricsConfig{Enabled: true, Listen: listen, Path: "/metrics"}
}

func get(t *testing.T, url string) (*fasthttp.Response, error) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := &fasthttp.Response{}

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	// Avoid keep-alive to prevent shutdown/read data race in fasthttp internals
	req.Header.SetConnectionClose()

	client := &fasthttp.Client{}
	err := client.DoTimeout(req, resp, 2*time.Second)
	return resp, err
}

func TestStart_Disabled(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := Start(configtypes.MetricsConfig{Enabled: false}, handler, zap.NewNop())

	require.NoError(t, err)
	assert.Nil(t, server)
}

func TestStart_ServesAndShutsDown(t *testing.T) {
	handler := &mockMetricsHandler{}

	server, err := Start(enabledConfig("127.0.0.1:0"), handler, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server)

	resp, err := get(t, "http://"+server.Addr()+"/metrics")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "test_metric 42")
	assert.True(t, handler.called)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	_, err = get(t, "http://"+server.Addr()+"/metrics")
	assert.Error(t, err, "connections should be refused after shutdown")
}

func TestStart_PortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	server, err := Start(enabledConfig(ln.Addr().String()), &mockMetricsHandler{}, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, server)
}

func TestHandler_Paths(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		requestURI string
		wantStatus int
		wantCalled bool
	}{
		{"metrics path", "/metrics", "/metrics", fasthttp.StatusOK, true},
		{"custom path", "/custom/metrics", "/custom/metrics", fasthttp.StatusOK, true},
		{"default path with custom config", "/custom/metrics", "/metrics", fasthttp.StatusNotFound, false},
		{"root", "/metrics", "/", fasthttp.StatusNotFound, false},
		{"nested", "/metrics", "/metrics/detailed", fasthttp.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockMetricsHandler{}
			handler := newHandler(tt.path, mock)

			ctx := &fasthttp.RequestCtx{}
			ctx.Request.SetRequestURI(tt.requestURI)
			handler(ctx)

			assert.Equal(t, tt.wantStatus, ctx.Response.StatusCode())
			assert.Equal(t, tt.wantCalled, mock.called)
		})
	}
}
