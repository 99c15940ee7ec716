package rfid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func TestClient_Next(t *testing.T) {
	t.Parallel()

	var got nextRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/next", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rfid":"0x80123456"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second, quietLogger())

	value, err := client.Next(context.Background(), "WIRELESS_GO_III", 3, "filmmaker_rf_ate")
	require.NoError(t, err)

	assert.Equal(t, "0x80123456", value)
	assert.Equal(t, nextRequest{ProductFamily: "WIRELESS_GO_III", ProductID: 3, Comment: "filmmaker_rf_ate"}, got)
}

func TestClient_NextErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server failure", status: http.StatusServiceUnavailable, body: `{"error":"pool exhausted"}`, wantErr: ErrServer},
		{name: "empty allocation", status: http.StatusOK, body: `{}`, wantErr: ErrEmptyAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second, quietLogger()).Next(context.Background(), "F", 1, "c")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_NextCanceled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(server.URL, time.Second, quietLogger()).Next(ctx, "F", 1, "c")
	assert.ErrorIs(t, err, context.Canceled)
}
