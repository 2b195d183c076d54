package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/mnistlab/internal/flagx"
)

// parseFlags applies the inference service's own flags:
//
//	-a string   HTTP listen address (":8000")
//	-g string   gRPC health listen address; empty disables it
//	-m string   path to the safetensors checkpoint
//	-v string   model version reported in logs and metrics
//	-l string   log level
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-m", "-v", "-l"})

	fs := flag.NewFlagSet("inference", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to serve HTTP")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to serve gRPC health")
	fs.StringVar(&config.CheckpointPath, "m", config.CheckpointPath, "model checkpoint path")
	fs.StringVar(&config.ModelVersion, "v", config.ModelVersion, "model version")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
