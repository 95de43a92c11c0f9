package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCommand_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image"); err != nil {
			http.Error(w, "no image", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"species":"Sunflower"}`))
	}))
	defer srv.Close()

	t.Setenv("PLANTID_CONFIG", "")
	t.Setenv("PLANTID_REMOTE_URL", srv.URL)
	t.Setenv("PLANTID_LOG_FORMAT", "json")
	t.Setenv("PLANTID_LOG_LEVEL", "error")

	dir := t.TempDir()
	photo := filepath.Join(dir, "sunflower.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))
	missing := filepath.Join(dir, "missing.jpg")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"classify", "--remote", photo, missing})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		useRemote = false
	})

	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "1 of 2 files could not be classified")
	assert.Contains(t, out.String(), photo+": Sunflower")
	assert.Contains(t, out.String(), missing+": error:")
}
