package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tgsearcher/internal/flagx"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	InstanceID     string  `json:"instance_id"`
	AdminChat      int64   `json:"admin_chat"`
	BotUsername    string  `json:"bot_username"`
	PageLen        int     `json:"page_len"`
	IndexDir       string  `json:"index_dir"`
	CleanIndex     bool    `json:"clean_index"`
	MonitorAll     bool    `json:"monitor_all"`
	ExcludedChats  []int64 `json:"excluded_chats"`
	CloudEnabled   bool    `json:"cloud_enabled"`

	PrivateMode            bool    `json:"private_mode"`
	PrivateWhitelist       []int64 `json:"private_whitelist"`
	PrivateWhitelistGroups []int64 `json:"private_whitelist_groups"`

	S3Region       string  `json:"s3_region"`
	S3Bucket       string  `json:"s3_bucket"`
	DynamoTable    string  `json:"dynamo_table"`
	AWSAccessKey   string  `json:"aws_access_key"`
	AWSSecretKey   string  `json:"aws_secret_key"`
	S3BaseEndpoint string  `json:"s3_base_endpoint"`
	RedisAddr      string  `json:"redis_addr"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. An unreadable or invalid file
// panics, since running with a half-read configuration is worse than not
// starting.
//
// Scalar values are copied only when present in the file, so an omitted key
// keeps its default.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *JsonConfig) {
	if c.InstanceID != "" {
		config.InstanceID = c.InstanceID
	}
	if c.AdminChat != 0 {
		config.AdminChat = c.AdminChat
	}
	if c.BotUsername != "" {
		config.BotUsername = c.BotUsername
	}
	if c.PageLen > 0 {
		config.PageLen = c.PageLen
	}
	if c.IndexDir != "" {
		config.IndexDir = c.IndexDir
	}
	config.CleanIndex = c.CleanIndex
	config.MonitorAll = c.MonitorAll
	if len(c.ExcludedChats) > 0 {
		config.ExcludedChats = c.ExcludedChats
	}
	config.CloudEnabled = c.CloudEnabled
	config.PrivateMode = c.PrivateMode
	if len(c.PrivateWhitelist) > 0 {
		config.PrivateWhitelist = c.PrivateWhitelist
	}
	if len(c.PrivateWhitelistGroups) > 0 {
		config.PrivateWhitelistGroups = c.PrivateWhitelistGroups
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.DynamoTable != "" {
		config.DynamoTable = c.DynamoTable
	}
	if c.AWSAccessKey != "" {
		config.AWSAccessKey = c.AWSAccessKey
	}
	if c.AWSSecretKey != "" {
		config.AWSSecretKey = c.AWSSecretKey
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
}
