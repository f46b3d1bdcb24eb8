package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/config"
	"github.com/City-of-Helsinki/hitas-sub002/internal/maxprice"
	"github.com/City-of-Helsinki/hitas-sub002/internal/notify"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/City-of-Helsinki/hitas-sub002/internal/scheduler"
	"github.com/City-of-Helsinki/hitas-sub002/internal/server"
	"github.com/City-of-Helsinki/hitas-sub002/internal/store"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/interest"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/output"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/validation"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// CLI override takes precedence
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var zapConfig zap.Config
	switch format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		zapConfig.OutputPaths = []string{loggingConfig.OutputFile}
		zapConfig.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zapConfig.Build()
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	serverConfigLocation := flag.String("server-config", constants.DefaultServerConfigFile, "path to HTTP server configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	serve := flag.Bool("serve", false, "serve the JSON API and run the regulation scheduler")
	regulationDate := flag.String("regulation-date", "", "run the thirty-year regulation for a date (YYYY-MM-DD) and print the report")
	maxPriceRequest := flag.String("max-price", "", "path to a JSON maximum price request to calculate and print")
	flag.Parse()

	if err := config.LoadEnvironment(); err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load environment\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	if !*serve && *regulationDate == "" && *maxPriceRequest == "" {
		logger.Fatal("nothing to do, pass -serve, -regulation-date or -max-price",
			zap.String("op", "main"),
		)
	}

	db, err := store.Open(conf.Database.Driver, conf.Database.DSN, logger)
	if err != nil {
		logger.Fatal("failed to open database",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer func() {
		_ = db.Close()
	}()
	if conf.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("failed to migrate database",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}

	options := regulation.Options{
		MinimumSaleCount:       conf.Regulation.MinimumSaleCount,
		Workers:                conf.Regulation.Workers,
		ReplacementPostalCodes: conf.Regulation.ReplacementPostalCodes,
	}
	if conf.Notifications.Enabled {
		publisher, err := notify.Dial(notify.Config{
			URL:        conf.Notifications.URL,
			Exchange:   conf.Notifications.Exchange,
			RoutingKey: conf.Notifications.RoutingKey,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to message broker",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		defer func() {
			_ = publisher.Close()
		}()
		options.Notifier = publisher
	}
	engine := regulation.NewEngine(logger, db, options)
	interestCalculator := interest.NewCalculator(logger, conf.Calculation.MarketPriceInterestRate, conf.Calculation.ConstructionPriceInterestRate)
	maxPriceCalculator := maxprice.NewCalculator(logger, interestCalculator)

	if *maxPriceRequest != "" {
		calculation, err := calculateMaxPrice(context.Background(), db, maxPriceCalculator, *maxPriceRequest)
		if err != nil {
			logger.Fatal("failed to calculate maximum price",
				zap.String("op", "main"),
				zap.String("request", *maxPriceRequest),
				zap.Error(err),
			)
		}
		switch outputFormat {
		case constants.OutputFormatPretty:
			output.PrettyCalculation(os.Stdout, calculation)
		case constants.OutputFormatCSV:
			output.CsvCalculation(os.Stdout, calculation)
		}
	}

	if *regulationDate != "" {
		date, err := civil.ParseDate(*regulationDate)
		if err != nil {
			logger.Fatal("invalid regulation date",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		report, err := engine.Run(context.Background(), date)
		if err != nil {
			logger.Fatal("failed to run thirty-year regulation",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		switch outputFormat {
		case constants.OutputFormatPretty:
			output.PrettyReport(os.Stdout, report)
		case constants.OutputFormatCSV:
			output.CsvReport(os.Stdout, report)
		}
	}

	if *serve {
		if err := runServer(logger, *serverConfigLocation, conf, db, engine, interestCalculator, maxPriceCalculator); err != nil {
			logger.Fatal("server failed",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}
}

// calculateMaxPrice reads a JSON request file and calculates it against the
// stored indices.
func calculateMaxPrice(ctx context.Context, db *store.Store, calculator *maxprice.Calculator, path string) (maxprice.Calculation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return maxprice.Calculation{}, fmt.Errorf("failed to read request: %w", err)
	}
	var req maxprice.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return maxprice.Calculation{}, fmt.Errorf("failed to decode request: %w", err)
	}
	table, err := db.LoadIndexTable(ctx)
	if err != nil {
		return maxprice.Calculation{}, err
	}
	return calculator.Calculate(table, req)
}

// runServer serves the API and runs the scheduled regulation until a
// termination signal arrives.
func runServer(logger *zap.Logger, serverConfigLocation string, conf *config.Configuration, db *store.Store,
	engine *regulation.Engine, interestCalculator *interest.Calculator, maxPriceCalculator *maxprice.Calculator) error {
	serverConf, err := server.LoadConfig(serverConfigLocation)
	if err != nil {
		return fmt.Errorf("failed to load server configuration at %s: %w", serverConfigLocation, err)
	}

	handler := server.NewHandler(server.Dependencies{
		Logger:         logger,
		Store:          db,
		Engine:         engine,
		Interest:       interestCalculator,
		MaxPrice:       maxPriceCalculator,
		Version:        version,
		MaxBodySize:    serverConf.BodySizeBytes(),
		AllowedOrigins: serverConf.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:              serverConf.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronScheduler := scheduler.New(engine, conf.Regulation.Schedule, logger)
	if err := cronScheduler.Start(); err != nil {
		return err
	}
	defer cronScheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("op", "main.runServer"),
			zap.String("address", serverConf.Address),
			zap.String("version", version),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down",
			zap.String("op", "main.runServer"),
		)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
