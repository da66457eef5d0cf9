package metrics

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByStatus(t *testing.T) {
	Init()
	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	missBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404"))

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/sessions/{session_id}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "session_id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"a", "missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, nil))
	}

	require.InDelta(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")), 0)
	require.InDelta(t, missBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

type pipeHijacker struct {
	*httptest.ResponseRecorder
}

func (pipeHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	_ = client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestResponseWriterHijack(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	rw = &responseWriter{ResponseWriter: pipeHijacker{httptest.NewRecorder()}, status: http.StatusOK}
	conn, _, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Equal(t, http.StatusSwitchingProtocols, rw.status)
}
