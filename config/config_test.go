package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", "")
	t.Setenv("SIDE_EFFECT_TIMEOUT", "")

	cfg := LoadConfig()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "X-Razorpay-Signature", cfg.GatewaySignatureHeader)
	assert.Equal(t, "INR", cfg.OrderCurrency)
	assert.Equal(t, 15*time.Second, cfg.SideEffectTimeout)
	assert.Empty(t, cfg.AdminEmails)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "webhook_secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("  whsec  \n"), 0o600))

	t.Setenv("GATEWAY_WEBHOOK_SECRET_FILE", secretPath)
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "ignored")
	t.Setenv("ADMIN_EMAILS", "ops@shop.test, ,owner@shop.test")
	t.Setenv("SIDE_EFFECT_TIMEOUT", "3s")
	t.Setenv("NOTIFY_MAX_PRIORITY", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, "whsec", cfg.GatewayWebhookSecret)
	assert.Equal(t, []string{"ops@shop.test", "owner@shop.test"}, cfg.AdminEmails)
	assert.Equal(t, 3*time.Second, cfg.SideEffectTimeout)
	assert.Equal(t, 10, cfg.MaxPriority)
}
