package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/mnistlab/internal/flagx"
)

// parseFlags applies the web front end's own flags:
//
//	-a string   HTTP listen address (":8501")
//	-d string   Postgres DSN
//	-i string   inference service base URL
//	-s string   session signing secret
//	-r string   Redis address; empty keeps sessions in memory
//	-l string   log level
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i", "-s", "-r", "-l"})

	fs := flag.NewFlagSet("web", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to serve HTTP")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.InferenceAPIURL, "i", config.InferenceAPIURL, "inference API base URL")
	fs.StringVar(&config.SessionSecret, "s", config.SessionSecret, "session signing secret")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address for sessions")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
