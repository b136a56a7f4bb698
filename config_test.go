package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			port:         3000,
			reapInterval: time.Minute,
			roomTimeout:  2 * time.Hour,
		}
	}

	require.NoError(t, valid().validate())

	t.Run("tls flags must be paired", func(t *testing.T) {
		cfg := valid()
		cfg.tlsCert = "/etc/ssl/cert.pem"
		assert.Error(t, cfg.validate())

		cfg.tlsKey = "/etc/ssl/key.pem"
		assert.NoError(t, cfg.validate())
	})

	t.Run("port range", func(t *testing.T) {
		cfg := valid()
		cfg.port = 0
		assert.Error(t, cfg.validate())

		cfg.port = 65536
		assert.Error(t, cfg.validate())
	})

	t.Run("reap interval floor", func(t *testing.T) {
		cfg := valid()
		cfg.reapInterval = 100 * time.Millisecond
		assert.Error(t, cfg.validate())
	})
}

func TestConfigScheme(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert = "/etc/ssl/cert.pem"
	cfg.tlsKey = "/etc/ssl/key.pem"
	assert.Equal(t, "https", cfg.scheme())
}
