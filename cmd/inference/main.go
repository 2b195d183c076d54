package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/mnistlab/internal/inference"
	"github.com/dmitrijs2005/mnistlab/internal/inference/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := inference.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
