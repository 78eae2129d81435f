package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/gradekeeper/internal/client/cli"
	"github.com/dmitrijs2005/gradekeeper/internal/client/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := cli.NewApp(ctx, cfg, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	app.Run(ctx)

}
