package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_parseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("overrides from flags", func(t *testing.T) {
		os.Args = []string{"testbin",
			"-a", "7000",
			"-i", "/var/lib/searcher/index",
			"-p", "25",
			"-r", "redis:6379",
			"-b", "archive",
			"-g", "eu-west-1",
			"-t", "messages",
			"-e", "http://127.0.0.1:9000/",
			"-m=true",
			"-l=true",
			"-x=true",
		}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFlags(cfg)

		assert.Equal(t, int64(7000), cfg.AdminChat)
		assert.Equal(t, "/var/lib/searcher/index", cfg.IndexDir)
		assert.Equal(t, 25, cfg.PageLen)
		assert.Equal(t, "redis:6379", cfg.RedisAddr)
		assert.Equal(t, "archive", cfg.S3Bucket)
		assert.Equal(t, "eu-west-1", cfg.S3Region)
		assert.Equal(t, "messages", cfg.DynamoTable)
		assert.Equal(t, "http://127.0.0.1:9000/", cfg.S3BaseEndpoint)
		assert.True(t, cfg.MonitorAll)
		assert.True(t, cfg.CloudEnabled)
		assert.True(t, cfg.CleanIndex)
	})

	t.Run("unrelated flags are ignored", func(t *testing.T) {
		os.Args = []string{"testbin", "-z", "whatever", "-p", "15"}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFlags(cfg)

		assert.Equal(t, 15, cfg.PageLen)
		assert.Equal(t, "./index", cfg.IndexDir)
	})
}
