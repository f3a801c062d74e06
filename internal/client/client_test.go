package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marlonreghert/tryvault-velocity/internal/batch"
	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/service"
)

func testRequest() model.LoadRequest {
	return model.LoadRequest{
		ID:         15887,
		CustomerID: 528,
		Amount:     decimal.RequireFromString("3318.47"),
		Time:       time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPostLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/loads", r.URL.Path)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"15887","customer_id":"528","load_amount":"$3318.47","time":"2000-01-01T00:00:00Z"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"15887","customer_id":"528","accepted":true}`))
	}))
	defer srv.Close()

	response, ok, err := NewLoadClient(srv.URL, "token").PostLoad(context.Background(), testRequest())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.LoadResponse{ID: "15887", CustomerID: "528", Accepted: true}, response)
}

func TestPostLoadDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, ok, err := NewLoadClient(srv.URL, "").PostLoad(context.Background(), testRequest())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPostLoadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "store read failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, ok, err := NewLoadClient(srv.URL, "").PostLoad(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.False(t, ok)
}

func writeErrorResponse(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"code":"` + code + `","error":"failed"}`))
}

func TestPostLoadErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		target error
	}{
		{name: "store read", status: http.StatusInternalServerError, code: model.ErrorCodeStoreRead, target: service.ErrStoreRead},
		{name: "invalid request", status: http.StatusBadRequest, code: model.ErrorCodeInvalidRequest, target: service.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeErrorResponse(w, tt.status, tt.code)
			}))
			defer srv.Close()

			_, ok, err := NewLoadClient(srv.URL, "").PostLoad(context.Background(), testRequest())
			require.ErrorIs(t, err, tt.target)
			require.False(t, ok)
		})
	}

	// 400 без тела с кодом
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()
	_, _, err := NewLoadClient(srv.URL, "").PostLoad(context.Background(), testRequest())
	require.ErrorIs(t, err, service.ErrInvalidRequest)

	// прочие ошибки сервера не относятся к чтению хранилища
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusInternalServerError, model.ErrorCodeInternal)
	}))
	defer srv2.Close()
	_, _, err = NewLoadClient(srv2.URL, "").PostLoad(context.Background(), testRequest())
	require.Error(t, err)
	require.NotErrorIs(t, err, service.ErrStoreRead)
}

func TestBatchSkipsStoreReadFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeErrorResponse(w, http.StatusInternalServerError, model.ErrorCodeStoreRead)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"2","customer_id":"1","accepted":true}`))
	}))
	defer srv.Close()

	input := strings.Join([]string{
		`{"id":"1","customer_id":"1","load_amount":"$5","time":"2000-01-01T00:00:00Z"}`,
		`{"id":"2","customer_id":"1","load_amount":"$5","time":"2000-01-01T01:00:00Z"}`,
	}, "\n")

	c := NewLoadClient(srv.URL, "")
	var out bytes.Buffer
	stats, err := batch.Run(context.Background(), batch.ProcessorFunc(c.PostLoad), strings.NewReader(input), &out, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, `{"id":"2","customer_id":"1","accepted":true}`, out.String())
	require.Equal(t, batch.Stats{Read: 2, Responded: 1, Accepted: 1, Skipped: 1}, stats)
}
