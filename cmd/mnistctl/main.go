package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/mnistlab/internal/ctl"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
)

func main() {

	ctx := context.Background()
	logger := logging.NewJSONLogger(os.Stderr, os.Getenv("LOG_LEVEL"))
	app := ctl.NewApp(os.Stdout, logger)

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mnistctl:", err)
		if errors.Is(err, ctl.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}

}
