package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/server"
)

const shutdownTimeout = 20 * time.Second

func main() {
	configFile := flag.String("config", "", "TOML config file (overrides CONFIG_FILE)")
	port := flag.String("port", "", "Server port")
	backend := flag.String("backend", "", "Remote backend base URL")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg := loadConfig(*configFile)
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Backend.BaseURL = *backend
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.LoadOrDefault()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
