package server_test

import (
	"testing"

	"bulkmerge/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       server.Config
		address   string
		bodyLimit int
	}{
		{"Defaults", server.Config{Port: "8080", BodyLimitMB: 64}, ":8080", 64 << 20},
		{"Custom", server.Config{Port: "9000", BodyLimitMB: 1}, ":9000", 1 << 20},
		{"Unset limit", server.Config{Port: "80"}, ":80", 64 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.address, tt.cfg.Address())
			assert.Equal(t, tt.bodyLimit, tt.cfg.BodyLimit())
		})
	}
}
