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
	"bufio"
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/fleethub/pkg/agent"
	"github.com/carverauto/fleethub/pkg/config"
	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/fleethub/agent.json", "Path to agent config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg models.AgentConfig

	if err := config.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return err
	}

	if cfg.DeviceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}

		cfg.DeviceID = hostname
	}

	mainLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	lines := make(chan string, 256)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a := agent.New(&cfg, lines, mainLogger)

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
