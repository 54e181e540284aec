package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal"
	"github.com/2beens/fitjourney/internal/config"
	"github.com/2beens/fitjourney/internal/logging"
)

var Version = "dev"

func main() {
	fmt.Println("starting fitjourney backend ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config-path", "./config.toml", "path of the TOML config file")
	logToStdout := flag.Bool("log-to-stdout", true, "log to stdout")
	logFilePath := flag.String("log-file-path", "", "path of the log file. empty - not logging to file")
	logLevel := flag.String("log-level", "trace", "log level")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	appSecret := os.Getenv("FITJOURNEY_APP_SECRET")
	if appSecret == "" {
		log.Fatalln("app secret not set. use FITJOURNEY_APP_SECRET")
	}

	redisPassword := os.Getenv("FITJOURNEY_REDIS_PASS")
	if redisPassword == "" {
		log.Fatalln("redis password not set. use FITJOURNEY_REDIS_PASS")
	}
	if redisPassword == "<skip>" {
		log.Warnln("skipping redis password")
		redisPassword = ""
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      *logFilePath,
		LogToStdout:      *logToStdout,
		LogLevel:         *logLevel,
		LogFormatJSON:    false,
		Environment:      *env,
		SentryEnabled:    cfg.SentryEnabled && sentryDSN != "",
		SentryDSN:        sentryDSN,
		SentryServerName: "fitjourney",
	})

	ctx, cancel := context.WithCancel(context.Background())
	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	server, err := internal.NewServer(ctx, internal.NewServerParams{
		Config:                  cfg,
		AppSecret:               appSecret,
		RedisPassword:           redisPassword,
		VersionInfo:             Version,
		HoneycombTracingEnabled: honeycombEnabled,
	})
	if err != nil {
		log.Fatalf("failed to create server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}
