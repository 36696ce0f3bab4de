/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/topdrop/internal/match"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		fuzzyThreshold: match.DefaultThreshold,
		itemCount:      30,
		mock:           true,
		playerTimeout:  time.Minute,
		port:           8080,
		sessionTimeout: time.Hour,
		store:          storeMemory,
		logger:         log.New(io.Discard),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, "tls-key"},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }, "tls-key"},
		{"port zero", func(c *Config) { c.port = 0 }, "invalid port"},
		{"port too large", func(c *Config) { c.port = 70000 }, "invalid port"},
		{"item count", func(c *Config) { c.itemCount = 40 }, "invalid item count"},
		{"threshold zero", func(c *Config) { c.fuzzyThreshold = 0 }, "fuzzy threshold"},
		{"threshold one", func(c *Config) { c.fuzzyThreshold = 1 }, "fuzzy threshold"},
		{"negative rate", func(c *Config) { c.generateRate = -1 }, "generate rate"},
		{"badger without dir", func(c *Config) { c.store = storeBadger }, ""},
		{"sqlite without dir", func(c *Config) { c.store = storeSQLite }, "--data-dir"},
		{"sqlite with dir", func(c *Config) { c.store = storeSQLite; c.dataDir = t.TempDir() }, ""},
		{"unknown store", func(c *Config) { c.store = "redis" }, "invalid store"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.modify(cfg)

			err := cfg.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestScheme(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestUseMock(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.useMock())

	cfg.mock = false
	assert.True(t, cfg.useMock(), "no key means no model")

	cfg.openaiKey = "sk-test"
	assert.False(t, cfg.useMock())

	cfg.mock = true
	assert.True(t, cfg.useMock())
}

func TestVersionFlag(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)
	cmd.SetArgs([]string{"--version"})

	var out strings.Builder
	cmd.SetOut(&out)

	assert.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "topdrop v"+releaseVersion)
}
