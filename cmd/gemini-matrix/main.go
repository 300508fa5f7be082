package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"
	"gopkg.in/natefinch/lumberjack.v2"
	"maunium.net/go/mautrix/id"

	"github.com/jjj333-p/gemini-matrix/pkg/bot"
	"github.com/jjj333-p/gemini-matrix/pkg/botcfg"
	"github.com/jjj333-p/gemini-matrix/pkg/fetch"
	"github.com/jjj333-p/gemini-matrix/pkg/imagegen"
	"github.com/jjj333-p/gemini-matrix/pkg/llm"
	"github.com/jjj333-p/gemini-matrix/pkg/matrixbot"
	"github.com/jjj333-p/gemini-matrix/pkg/session"
)

var (
	configPath   = flag.String("config", "config.yaml", "path to the config file (YAML or JSON5)")
	writeExample = flag.Bool("write-example-config", false, "write an example config to the config path and exit")
)

func main() {
	flag.Parse()

	if *writeExample {
		if err := os.WriteFile(*configPath, []byte(botcfg.ExampleConfig), 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write example config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Wrote example config to", *configPath)
		return
	}

	// Missing .env is fine, secrets may come from the real environment.
	_ = godotenv.Load()

	cfg, err := botcfg.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Bot exited with error")
	}
	log.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *botcfg.Config, log zerolog.Logger) error {
	provider, err := llm.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	sessions := session.NewRegistry(func(ctx context.Context) (session.Conversation, error) {
		return provider.NewConversation(ctx)
	}, log)

	generator := imagegen.NewClient(&cfg.Image, log)
	fetcher := fetch.NewImageFetcher(&cfg.Fetch, log)

	mx, err := matrixbot.New(cfg.Matrix, log)
	if err != nil {
		return fmt.Errorf("failed to create Matrix client: %w", err)
	}

	pipeline := bot.NewPipeline(bot.Params{
		SelfID:        id.UserID(cfg.Matrix.UserID),
		Nick:          cfg.Matrix.DisplayName,
		ImageTrigger:  cfg.Bot.ImageTrigger,
		ModelTimeout:  time.Duration(cfg.Bot.ModelTimeoutSecs) * time.Second,
		UploadTimeout: time.Duration(cfg.Bot.UploadTimeoutSecs) * time.Second,
	}, mx, sessions, generator, fetcher, log)
	mx.OnMessage(pipeline.Handle)

	log.Info().
		Str("homeserver", cfg.Matrix.Homeserver).
		Str("nick", cfg.Matrix.DisplayName).
		Str("image_trigger", cfg.Bot.ImageTrigger).
		Msg("Starting bot")
	return mx.Run(ctx)
}

func setupLogging(cfg botcfg.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var writers []io.Writer
	if cfg.Console == nil || *cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli})
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().
		Level(level)
	exzerolog.SetupDefaults(&log)
	return log, nil
}
