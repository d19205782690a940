package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"authguard-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides AUTHGUARD_CONFIG)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("AUTHGUARD_CONFIG", *configPath)
	}

	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "authguard failed: %v\n", err)
		os.Exit(1)
	}
}
