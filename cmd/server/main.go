package main

import (
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/avhall/quizdash/internal/auth"
	"github.com/avhall/quizdash/internal/handlers"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := logrus.ParseLevel(raw); err == nil {
			logger.SetLevel(level)
		}
	}

	if err := auth.Init(); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}

	srv := handlers.NewServer(logger)
	handler := handlers.Routes(logger, srv)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("quizdash listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
