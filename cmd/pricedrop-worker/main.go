package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/PriceDrop/config"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := workerHTTPOpts{swaggerPath: os.Getenv("workerSwaggerPath")}
	if err := RunPriceDropWorker(ctx, cfg, defaultWorkerFactories(), opts); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}
