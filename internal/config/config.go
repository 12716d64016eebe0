// Package config handles configuration for the searcher service, including
// defaults, JSON overlay, and command-line flags.
package config

import "github.com/google/uuid"

// Config holds the runtime settings of the searcher.
//
// Fields:
//   - InstanceID: distinguishes the correlation entries of parallel instances
//     sharing one redis. A fresh random id is generated when not configured,
//     which makes correlation entries of previous runs unreachable; set it
//     explicitly to keep result pages working across restarts.
//   - AdminChat: chat id whose messages unlock the administrative commands.
//   - BotUsername: bot account name, used to detect being addressed in groups.
//   - PageLen: results per search page.
//   - IndexDir: directory of the on-disk index; empty selects the in-memory
//     index (tests, throwaway deployments).
//   - CleanIndex: drop existing index data on startup.
//   - MonitorAll / ExcludedChats: monitoring policy bootstrap.
//   - CloudEnabled + S3/Dynamo settings: the archival sink. AWSAccessKey
//     empty means the ambient credential chain is used.
//   - PrivateMode + PrivateWhitelist/PrivateWhitelistGroups: restrict the bot
//     to the listed users and chats; groups are expanded into member ids at
//     startup. JSON-only settings.
//   - RedisAddr: correlation store address; empty selects the in-memory store.
type Config struct {
	InstanceID     string
	AdminChat      int64
	BotUsername    string
	PageLen        int
	IndexDir       string
	CleanIndex     bool
	MonitorAll     bool
	ExcludedChats  []int64
	CloudEnabled   bool

	PrivateMode            bool
	PrivateWhitelist       []int64
	PrivateWhitelistGroups []int64

	S3Region       string
	S3Bucket       string
	DynamoTable    string
	AWSAccessKey   string
	AWSSecretKey   string
	S3BaseEndpoint string
	RedisAddr      string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.InstanceID = uuid.NewString()[:8]
	c.PageLen = 10
	c.IndexDir = "./index"
	c.S3Region = "us-east-1"
	c.S3Bucket = "tg-archive"
	c.DynamoTable = "tg-messages"
	c.RedisAddr = "localhost:6379"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
