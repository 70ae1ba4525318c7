package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeSDK = `;(function(){window.GlobalSnowplowNamespace=window.GlobalSnowplowNamespace||[];})();`

func TestCache_FetchesOnce(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(fakeSDK))
	}))
	defer ts.Close()

	c := NewCache(ts.URL+"/sp.js", ts.Client(), nil)
	assert.Equal(t, ts.URL+"/sp.js", c.URL())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, fakeSDK, string(src))
		}()
	}
	wg.Wait()

	src, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fakeSDK, string(src))
	assert.EqualValues(t, 1, hits.Load())
}

func TestCache_FailureIsSticky(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewCache(ts.URL+"/sp.js", ts.Client(), nil)
	_, err := c.Get(context.Background())
	require.ErrorContains(t, err, "unexpected status")

	_, err = c.Get(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestCache_BadURL(t *testing.T) {
	c := NewCache("http://127.0.0.1:1/sp.js", nil, nil)
	_, err := c.Get(context.Background())
	assert.ErrorContains(t, err, "fetch tracker sdk")
}

func TestWritePage(t *testing.T) {
	dir := t.TempDir()
	p, err := WritePage(dir, []byte(fakeSDK))
	require.NoError(t, err)
	assert.Equal(t, dir, p.Dir)
	assert.NotEmpty(t, p.RunID)
	assert.NotEqual(t, "DevTools", p.Title)

	src, err := os.ReadFile(filepath.Join(dir, SDKFile))
	require.NoError(t, err)
	assert.Equal(t, fakeSDK, string(src))

	html, err := os.ReadFile(filepath.Join(dir, PageFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>"+p.Title+"</title>")
	assert.Contains(t, string(html), p.RunID)
}

func TestWritePage_Errors(t *testing.T) {
	_, err := WritePage(t.TempDir(), nil)
	assert.ErrorContains(t, err, "empty sdk source")

	_, err = WritePage(filepath.Join(t.TempDir(), "missing"), []byte(fakeSDK))
	assert.Error(t, err)
}
