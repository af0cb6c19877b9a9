/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/fleethub/pkg/bridge"
	"github.com/carverauto/fleethub/pkg/config"
	"github.com/carverauto/fleethub/pkg/geo"
	"github.com/carverauto/fleethub/pkg/hub"
	"github.com/carverauto/fleethub/pkg/hub/api"
	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
	"github.com/carverauto/fleethub/pkg/sink"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/fleethub/hub.json", "Path to hub config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg models.HubConfig

	if err := config.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return err
	}

	mainLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	logSink, err := sink.NewFromConfig(ctx, cfg.Sink, mainLogger)
	if err != nil {
		return err
	}

	defer func() {
		if err := logSink.Close(); err != nil {
			mainLogger.Warn().Err(err).Msg("Error closing log sink")
		}
	}()

	resolver, err := geo.NewFromConfig(cfg.Geo)
	if err != nil {
		return err
	}

	h := hub.NewHub(&cfg, logSink, resolver, mainLogger)
	b := bridge.New(cfg.Bridge, mainLogger)

	server := hub.NewServer(h, b, mainLogger)
	api.NewAPIServer(h, h, mainLogger).RegisterRoutes(server.Router())

	if err := server.Start(ctx, cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
