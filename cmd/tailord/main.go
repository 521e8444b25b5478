package main

import (
	"context"
	"log"
	"os"

	"tailor/internal/config"
	"tailor/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("TAILOR_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:  os.Getenv("TAILOR_LOG_LEVEL"),
		LogFormat: os.Getenv("TAILOR_LOG_FORMAT"),
	}); err != nil {
		log.Fatalf("tailord: %v", err)
	}
}
