package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beamgate/beamgate/runtime"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okService struct{}

func (_ *okService) Start()        {}
func (_ *okService) Stop() error   { return nil }
func (_ *okService) Status() error { return nil }

type failingService struct{}

func (_ *failingService) Start()      {}
func (_ *failingService) Stop() error { return nil }
func (_ *failingService) Status() error {
	return errors.New("something is wrong")
}

func TestHealthz_AllServicesHealthy(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&okService{}))

	s := NewService(":0", registry)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "OK")
}

func TestHealthz_FailingService(t *testing.T) {
	registry := runtime.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&failingService{}))

	s := NewService(":0", registry)
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ERROR something is wrong")
}

func TestService_AdditionalHandlers(t *testing.T) {
	s := NewService(":0", runtime.NewServiceRegistry(), Handler{
		Path: "/custom",
		Handler: func(w http.ResponseWriter, _ *http.Request) {
			_, err := w.Write([]byte("custom response"))
			require.NoError(t, err)
		},
	})
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/custom")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "custom response", string(body))
}

func TestService_Goroutinez(t *testing.T) {
	s := NewService(":0", runtime.NewServiceRegistry())
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/goroutinez")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "goroutine")
}

func TestService_Metrics(t *testing.T) {
	s := NewService(":0", runtime.NewServiceRegistry())
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
