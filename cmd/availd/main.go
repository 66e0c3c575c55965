package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"availsync/internal/api"
	"availsync/internal/app"
	"availsync/internal/backends"
	"availsync/internal/config"
	"availsync/internal/netwatch"
	"availsync/internal/ports"
	"availsync/internal/pub"
	"availsync/internal/remote"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a .yaml or .toml config file")
	flag.Parse()

	// Load environment variables
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Info("The .env file not found.")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backends.StateBackendFromEnv(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}

	client, err := remote.NewClient(remote.Options{
		BaseURL:          cfg.Backend.URL,
		AvailabilityPath: cfg.Backend.AvailabilityPath,
		Token:            cfg.Backend.AuthToken,
		Timeout:          cfg.Backend.Timeout.Std(),
		Fields:           cfg.Backend.Fields,
	})
	if err != nil {
		log.Fatalf("Failed to initialize backend client: %v", err)
	}

	publisher, err := deadLetterPublisher(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize publisher: %v", err)
	}

	a, err := app.New(ctx, cfg, app.Deps{
		Store:     store,
		Client:    client,
		Fallback:  remote.NewActionSender(client),
		Prober:    netwatch.HTTPProber{URL: cfg.ProbeURL()},
		Publisher: publisher,
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	a.Start(ctx)

	stopSrv, done := api.RunServerInterruptible(cfg.ListenAddr(), api.NewHandler(a.Controller, a.Queue, a.Connectivity))
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		close(stopSrv)
		if err := <-done; err != nil {
			log.WithError(err).Error("server stopped with error")
		}
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("server failed")
		}
	}
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("failed to close state store")
	}
}

func setupLogging(c config.Log) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", c.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// deadLetterPublisher returns an SNS publisher when a topic is configured.
func deadLetterPublisher(ctx context.Context, cfg config.Config) (ports.Publisher, error) {
	if cfg.Queue.DeadLetterARN == "" {
		return pub.LogPublisher{}, nil
	}
	var snsEndpoint *string
	if se := os.Getenv("SNS_ENDPOINT"); se != "" {
		snsEndpoint = aws.String(se)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if snsEndpoint != nil {
			o.BaseEndpoint = snsEndpoint
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	})
	return pub.NewSNS(snsClient), nil
}
