package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BinJu/train/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRequests(t *testing.T) {
	var (
		gotMethod, gotPath, gotType string
		gotBody                     []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/art/opsman/borrow":
			_, _ = w.Write([]byte(`{"art_id":"opsman","inst_id":"i1","results":{"url":"https://x"}}`))
		case "/api/v1/account":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"a1","name":"gcp","total":2,"in_stock":2}`))
		default:
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"art_id":"opsman","status":"queued"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Enqueue(ctx, "opsman"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v1/sched/opsman", gotPath)

	b, err := c.Borrow(ctx, "opsman")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "i1", b.InstanceID)
	assert.Equal(t, "https://x", b.Results["url"])

	acct, err := c.CreateAccount(ctx, "gcp", 2, map[string]string{"key": "k"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"name":"gcp","total":2,"data":{"key":"k"}}`, string(gotBody))
	assert.Equal(t, 2, acct.InStock)

	_, _ = c.Apply(ctx, []byte("name: opsman\n"))
	assert.Equal(t, "/api/v1/art", gotPath)
	assert.Equal(t, "application/yaml", gotType)
	assert.Equal(t, "name: opsman\n", string(gotBody))
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/art/plain" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"artifact not found"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	_, err := c.GetArtifact(context.Background(), "ghost")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "artifact not found", apiErr.Message)

	_, err = c.GetArtifact(context.Background(), "plain")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "boom", apiErr.Message)
}

func TestNewClientAddsScheme(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", NewClient("localhost:8080/").baseURL)
	assert.Equal(t, "https://train.example", NewClient("https://train.example").baseURL)
}

func TestClientDecodesSummaries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"opsman","revision":2,"total":3,"target":2,"build":"Running","clean":"NotScheduled","numbers":{"running":1}}]`))
	}))
	defer srv.Close()

	list, err := NewClient(srv.URL).ListArtifacts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "opsman", list[0].ID)
	assert.Equal(t, 2, list[0].Revision)
	assert.Equal(t, types.RolloutRunning, list[0].Build)
	assert.Equal(t, 1, list[0].Numbers.Running)
}
