// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/ai/openai"
	"github.com/poiesic/answerbank/config"
	"github.com/urfave/cli/v2"
)

// newProvider connects to the embedding runtime. Tests replace it.
var newProvider = func(cfg *ai.Config) (ai.Provider, error) {
	return openai.NewProvider(cfg)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("reading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "answerbank",
		Usage: "Find archived official answers similar to a new inquiry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"ANSWERBANK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   config.DefaultPath,
				EnvVars: []string{"ANSWERBANK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Store root directory (overrides store.root)",
				EnvVars: []string{"ANSWERBANK_ROOT"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL (overrides embedder.host)",
				EnvVars: []string{"ANSWERBANK_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "model-dir",
				Usage:   "Model artifact directory holding model_info (overrides embedder.model_dir)",
				EnvVars: []string{"ANSWERBANK_MODEL_DIR"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Model name sent to the embedding service (overrides embedder.model)",
				EnvVars: []string{"ANSWERBANK_EMBEDDING_MODEL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			buildCommand(),
			searchCommand(),
			keywordCommand(),
			categoriesCommand(),
			infoCommand(),
			initConfigCommand(),
		},
	}
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("root") {
		cfg.Store.Root = c.String("root")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedder.Host = c.String("embedding-host")
	}
	if c.IsSet("model-dir") {
		cfg.Embedder.ModelDir = c.String("model-dir")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedder.Model = c.String("embedding-model")
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
