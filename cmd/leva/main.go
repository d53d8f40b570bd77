package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bdobrica/leva/common/environment"
	"github.com/bdobrica/leva/common/version"
	"github.com/bdobrica/leva/internal/leva/app"
	"github.com/bdobrica/leva/internal/leva/observability"
)

func main() {
	fmt.Printf("Leva\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	if err := environment.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: load .env: %v\n", err)
		os.Exit(1)
	}

	config, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	observability.Setup(config.LogLevel, config.LogFormat)

	leva, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Leva: %v\n", err)
		os.Exit(1)
	}
	defer leva.Stop()

	if err := leva.Run(context.Background()); err != nil {
		leva.Stop()
		fmt.Fprintf(os.Stderr, "Error running Leva: %v\n", err)
		os.Exit(1)
	}
}
