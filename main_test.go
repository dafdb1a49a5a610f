package main

import (
	"testing"

	"payment-service/config"
	"payment-service/models"

	"github.com/stretchr/testify/assert"
)

func TestFallbackAdmins(t *testing.T) {
	cfg := &config.Config{
		AdminEmails: []string{"ops@shop.test"},
		AdminPhones: []string{"+910000000001"},
	}
	assert.Equal(t, []models.Contact{
		{Channel: models.ChannelEmail, Address: "ops@shop.test"},
		{Channel: models.ChannelSMS, Address: "+910000000001"},
	}, fallbackAdmins(cfg))

	assert.Empty(t, fallbackAdmins(&config.Config{}))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "serve", serveCmd().Name())
	assert.NotNil(t, serveCmd().Flags().Lookup("migrate"))
	assert.Equal(t, "migrate-up", migrateUpCmd().Name())
}
