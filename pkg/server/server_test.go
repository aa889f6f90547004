package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/feedclient/pkg/config"
	middleware "github.com/milan604/feedclient/pkg/server/middleware"
	"github.com/milan604/feedclient/pkg/validator"
)

func TestNewEngineChain(t *testing.T) {
	e := NewEngine(
		WithRecovery(true),
		WithPrometheus(true, "test"),
		WithCors(middleware.DefaultCorsConfig()),
		WithValidator(validator.New()),
	)
	e.GET("/ok", func(c *gin.Context) {
		_, ok := middleware.GetValidator(c)
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})
	e.GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
}

func TestResolveAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8000", resolveAddress(&startOptions{}))
	assert.Equal(t, ":9000", resolveAddress(&startOptions{addr: ":9000"}))

	cfg, err := config.New(config.WithDefaults(map[string]any{KeyServerHost: "0.0.0.0", KeyServerPort: "8081"}))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8081", resolveAddress(&startOptions{cfg: cfg}))
}

func TestStartServesUntilCanceled(t *testing.T) {
	e := NewEngine()
	e.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, e,
			StartWithAddr("127.0.0.1:0"),
			StartWithShutdownTimeout(time.Second),
			StartWithReady(func(a net.Addr) { ready <- a }))
	}()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = Start(context.Background(), NewEngine(), StartWithAddr(ln.Addr().String()))
	assert.Error(t, err)
}
