package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")

	require.NoError(t, Load(""))
	c := Get()

	assert.Equal(t, ":8080", c.HttpListenAddr)
	assert.Equal(t, "/api/v1", c.HttpBaseRequestUrl)
	assert.Equal(t, 30*time.Second, c.HttpServerReadTimeout)
	assert.Equal(t, "https://api.razorpay.com", c.GatewayBaseUrl)
	assert.Equal(t, "rzp_test_key", c.GatewayKeyID)
	assert.Equal(t, "transactions:recorded", c.QueueName)
	assert.Equal(t, "ledger:transactions", c.LedgerKey)
	assert.Equal(t, 1.0, c.GatewayMockSuccessRate)
	assert.Equal(t, []string{"*"}, c.CorsOrigins())
	assert.False(t, c.MediaConfigured())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "CLOUDINARY_CLOUD_NAME=demo\nCLOUDINARY_API_KEY=key\nCLOUDINARY_API_SECRET=secret\nDIGEST_RECIPIENTS=a@kryos.io, b@kryos.io,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET", "DIGEST_RECIPIENTS"} {
			_ = os.Unsetenv(k)
		}
	})

	require.NoError(t, Load(path))
	c := Get()

	assert.True(t, c.MediaConfigured())
	assert.Equal(t, []string{"a@kryos.io", "b@kryos.io"}, c.DigestRecipientList())
}

func TestLoad_MissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}
