package config

import (
	"fmt"

	"github.com/dmitrijs2005/mnistlab/internal/flagx"
)

// parseEnv applies HTTP_ADDR, GRPC_ADDR, MODEL_PATH, MODEL_VERSION,
// LOG_LEVEL and SHUTDOWN_TIMEOUT.
func parseEnv(config *Config) {
	flagx.EnvString(&config.HTTPAddr, "HTTP_ADDR")
	flagx.EnvString(&config.GRPCAddr, "GRPC_ADDR")
	flagx.EnvString(&config.CheckpointPath, "MODEL_PATH")
	flagx.EnvString(&config.ModelVersion, "MODEL_VERSION")
	flagx.EnvString(&config.LogLevel, "LOG_LEVEL")
	if !flagx.EnvDuration(&config.ShutdownTimeout, "SHUTDOWN_TIMEOUT") {
		panic(fmt.Errorf("invalid SHUTDOWN_TIMEOUT"))
	}
}
