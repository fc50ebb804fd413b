package main

import (
	"flag"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/mfcastro/aihub/internal/config"
	"github.com/mfcastro/aihub/pkg/hub"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	config.LoadEnvFiles([]string{".env.local", ".env.development", ".env"})

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	if err := hub.New(cfg).Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
