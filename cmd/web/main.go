package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/mnistlab/internal/web"
	"github.com/dmitrijs2005/mnistlab/internal/web/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := web.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
