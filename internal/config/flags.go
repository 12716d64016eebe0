package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/tgsearcher/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a int      admin chat id
//	-n string   instance id
//	-i string   index directory ("" selects the in-memory index)
//	-p int      results per search page
//	-r string   redis address ("" selects the in-memory store)
//	-b string   S3 bucket name
//	-g string   S3 region
//	-t string   DynamoDB table name
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m          monitor all chats (use -m=true)
//	-l          enable the archival sink (use -l=true)
//	-x          drop existing index data on startup (use -x=true)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-n", "-i", "-p", "-r", "-b", "-g", "-t", "-e", "-m", "-l", "-x"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.Int64Var(&config.AdminChat, "a", config.AdminChat, "admin chat id")
	fs.StringVar(&config.InstanceID, "n", config.InstanceID, "instance id")
	fs.StringVar(&config.IndexDir, "i", config.IndexDir, "index directory")
	fs.IntVar(&config.PageLen, "p", config.PageLen, "results per search page")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.DynamoTable, "t", config.DynamoTable, "DynamoDB table")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.MonitorAll, "m", config.MonitorAll, "monitor all chats")
	fs.BoolVar(&config.CloudEnabled, "l", config.CloudEnabled, "enable the archival sink")
	fs.BoolVar(&config.CleanIndex, "x", config.CleanIndex, "drop existing index data on startup")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
