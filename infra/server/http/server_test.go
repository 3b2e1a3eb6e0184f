package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arcfront/shellbus/config"
	httpsrv "github.com/arcfront/shellbus/infra/server/http"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerServesAndShutsDown(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Addr: "127.0.0.1:0"}}
	s := httpsrv.NewServer(cfg, discardLogger())
	s.Mux.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	require.NoError(t, s.Start(context.Background()))

	client := &http.Client{}
	defer client.CloseIdleConnections()

	resp, err := client.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop(context.Background()))

	_, err = client.Get("http://" + s.Addr() + "/ping")
	require.Error(t, err, "the listener must be gone after shutdown")
}

func TestServerRefusesBusyPort(t *testing.T) {
	first := httpsrv.NewServer(&config.Config{
		Server: config.ServerConfig{Addr: "127.0.0.1:0"},
	}, discardLogger())
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	second := httpsrv.NewServer(&config.Config{
		Server: config.ServerConfig{Addr: first.Addr()},
	}, discardLogger())
	err := second.Start(context.Background())
	require.Error(t, err, "binding failures surface at startup")
	assert.Contains(t, err.Error(), "listen")
}
