package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
)

func TestNew_Defaults(t *testing.T) {
	c := New("test", 0, 0)

	assert.Equal(t, DefaultMaxBatch, c.maxBatch)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Zero(t, c.Width())
}

func TestClient_PostJSON(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		rateLimited bool
		wantMsg     string
	}{
		{name: "ok", status: http.StatusOK, body: `{"value":"pong"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", wantErr: true, rateLimited: true, wantMsg: "slow down"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "bad key", wantErr: true, wantMsg: "authentication failed (status 401)"},
		{name: "forbidden", status: http.StatusForbidden, wantErr: true, wantMsg: "authentication failed (status 403)"},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: true, wantMsg: "status 500: boom"},
		{name: "undecodable body", status: http.StatusOK, body: "not json", wantErr: true, wantMsg: "decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotType, gotBody string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotType = r.Header.Get("Content-Type")
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New("acme", 0, 0)
			var out struct {
				Value string `json:"value"`
			}
			header := http.Header{"Authorization": []string{"Bearer k"}}
			err := c.PostJSON(context.Background(), srv.URL, header, map[string]string{"input": "hi"}, &out)

			assert.Equal(t, "Bearer k", gotAuth)
			assert.Equal(t, "application/json", gotType)
			assert.JSONEq(t, `{"input":"hi"}`, gotBody)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "pong", out.Value)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
			assert.Equal(t, tt.rateLimited, errors.Is(err, domain.ErrRateLimited))
			assert.Contains(t, err.Error(), "acme")
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_PostJSON_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New("acme", 0, 0).PostJSON(context.Background(), url, nil, struct{}{}, &struct{}{})

	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
}

func TestClient_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	c := New("acme", 0, 0)

	assert.NoError(t, c.Check(context.Background(), srv.URL+"/up", nil))

	err := c.Check(context.Background(), srv.URL+"/down", nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	assert.Contains(t, err.Error(), "status 503")
}

// indexEmbed returns [i, 1] for the text "t<i>".
func indexEmbed(sizes *[]int, mu *sync.Mutex) EmbedFunc {
	return func(_ context.Context, texts []string) ([][]float64, error) {
		mu.Lock()
		*sizes = append(*sizes, len(texts))
		mu.Unlock()
		out := make([][]float64, len(texts))
		for i, text := range texts {
			n, err := strconv.Atoi(strings.TrimPrefix(text, "t"))
			if err != nil {
				return nil, err
			}
			out[i] = []float64{float64(n), 1}
		}
		return out, nil
	}
}

func TestClient_Batches(t *testing.T) {
	tests := []struct {
		name      string
		maxBatch  int
		n         int
		wantSizes []int
	}{
		{"empty input", 2, 0, nil},
		{"single batch", 8, 3, []int{3}},
		{"exact split", 2, 4, []int{2, 2}},
		{"uneven split", 2, 5, []int{1, 2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texts := make([]string, tt.n)
			for i := range texts {
				texts[i] = "t" + strconv.Itoa(i)
			}
			var (
				sizes []int
				mu    sync.Mutex
			)
			c := New("acme", 0, tt.maxBatch)

			vecs, err := c.Batches(context.Background(), texts, indexEmbed(&sizes, &mu))

			require.NoError(t, err)
			sort.Ints(sizes)
			assert.Equal(t, tt.wantSizes, sizes)
			require.Len(t, vecs, tt.n)
			for i, v := range vecs {
				assert.Equal(t, []float32{float32(i), 1}, v, "vector %d out of order", i)
			}
			if tt.n > 0 {
				assert.Equal(t, 2, c.Width())
			}
		})
	}
}

func TestClient_Batches_Failures(t *testing.T) {
	tests := []struct {
		name    string
		fn      EmbedFunc
		wantMsg string
	}{
		{
			name: "count mismatch",
			fn: func(context.Context, []string) ([][]float64, error) {
				return [][]float64{{1, 2}}, nil
			},
			wantMsg: "got 1 embeddings for 2 inputs",
		},
		{
			name: "empty vector",
			fn: func(_ context.Context, texts []string) ([][]float64, error) {
				return make([][]float64, len(texts)), nil
			},
			wantMsg: "empty embedding",
		},
		{
			name: "width change",
			fn: func(_ context.Context, texts []string) ([][]float64, error) {
				return [][]float64{{1, 2}, {1, 2, 3}}, nil
			},
			wantMsg: "width changed from 2 to 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("acme", 0, 4).Batches(context.Background(), []string{"a", "b"}, tt.fn)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_Batches_WidthFixedAcrossCalls(t *testing.T) {
	c := New("acme", 0, 0)
	ctx := context.Background()
	vec := func(n int) EmbedFunc {
		return func(_ context.Context, texts []string) ([][]float64, error) {
			out := make([][]float64, len(texts))
			for i := range out {
				out[i] = make([]float64, n)
				out[i][0] = 1
			}
			return out, nil
		}
	}

	_, err := c.Batches(ctx, []string{"a"}, vec(3))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Width())

	_, err = c.Batches(ctx, []string{"b"}, vec(4))
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	assert.Equal(t, 3, c.Width())
}

func TestClient_Batches_PropagatesEmbedError(t *testing.T) {
	boom := errors.New("boom")

	_, err := New("acme", 0, 1).Batches(context.Background(), []string{"a", "b", "c"},
		func(context.Context, []string) ([][]float64, error) { return nil, boom })

	assert.ErrorIs(t, err, boom)
}
