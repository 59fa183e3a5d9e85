package http_test

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/tiermem/internal/http"
	"github.com/fyrsmithlabs/tiermem/internal/integration"
	"github.com/fyrsmithlabs/tiermem/internal/services"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// ExampleServer demonstrates how to create and start the HTTP server.
func ExampleServer() {
	logger := zap.NewNop()
	reg := integration.NewRegistry(tiered.DefaultConfig(), logger)
	mem, err := services.NewMemory(services.Options{Registry: reg, Logger: logger})
	if err != nil {
		panic(err)
	}

	server, err := httpserver.NewServer(mem, logger, &httpserver.Config{Host: "127.0.0.1", Port: 0})
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	fmt.Println("Server started and stopped successfully")
	// Output: Server started and stopped successfully
}
