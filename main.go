package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"media-ingest/internal/database"
	"media-ingest/internal/filesystem"
	"media-ingest/internal/handlers"
	"media-ingest/internal/ingest"
	"media-ingest/internal/logging"
	"media-ingest/internal/media"
	"media-ingest/internal/memory"
	"media-ingest/internal/metadata"
	"media-ingest/internal/metrics"
	"media-ingest/internal/middleware"
	"media-ingest/internal/startup"
	"media-ingest/internal/storage"
	"media-ingest/internal/transcoder"
	"media-ingest/internal/workers"

	"github.com/gorilla/mux"
)

const (
	// maxTranscodeWorkers caps the CPU-derived transcode concurrency.
	maxTranscodeWorkers = 8

	// multipartOverhead is the body allowance on top of MAX_UPLOAD_BYTES for
	// form boundaries and the title part.
	multipartOverhead = 1 << 20

	statsInterval = time.Minute
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	startup.LogMemoryConfig(memory.ConfigureLimit(config.MemoryLimit, config.MemoryRatio))

	policy, err := startup.LoadPolicy(config)
	if err != nil {
		startup.LogFatal("Policy error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Initialize metrics
	metrics.InitializeMetrics()
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, runtime.Version()).Set(1)
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	collector := metrics.NewCollector(db, statsInterval)
	collector.Start()
	defer collector.Stop()

	// Initialize image processing and transcoder
	imageProcessor := "imaging"
	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable, using pure Go image processing: %v", err)
	} else {
		defer media.ShutdownVips()
	}
	if media.IsVipsAvailable() {
		imageProcessor = "libvips"
	}
	slotCount := workers.Resolve(config.TranscodeWorkers, workers.ForCPU(maxTranscodeWorkers))
	startup.LogTranscoderInit(config, slotCount, imageProcessor)
	trans := transcoder.New(transcoder.NewExecRunner(config.FFmpegPath), media.NewProcessor())

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	// Initialize storage
	publisher, err := newPublisher(config)
	if err != nil {
		startup.LogFatal("Failed to initialize storage: %v", err)
	}
	startup.LogStorageInit(publisher.Backend())

	pipeline := ingest.New(ingest.Config{
		MediaDir:       config.MediaDir,
		TempDir:        config.TempDir,
		MaxUploadBytes: config.MaxUploadBytes,
	}, ingest.Deps{
		Policy:     policy,
		Extractor:  metadata.NewExtractor(&metadata.FFProbe{Path: config.FFprobePath}),
		Transcoder: trans,
		Registry:   db,
		Publisher:  publisher,
		Slots:      workers.NewSlots(slotCount),
		Memory:     monitor,
	})

	// Initialize handlers
	h := handlers.New(pipeline, db)

	// Setup router
	router := setupRouter(h, config)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	// Create server
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // uploads of large video can take minutes
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.SeparateMetricsServer() {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", h.MetricsHandler()).Methods("GET")
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	done := make(chan struct{})
	go func() {
		handleShutdown(config.ShutdownTimeout, trans, monitor, srv, metricsSrv)
		close(done)
	}()

	// Start server
	metricsPort := config.MetricsPort
	if !config.SeparateMetricsServer() {
		metricsPort = config.Port
	}
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     metricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func newPublisher(config *startup.Config) (*storage.Publisher, error) {
	var backend storage.Backend
	switch config.StorageBackend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s3, err := storage.NewS3(ctx, config.S3)
		if err != nil {
			return nil, err
		}
		backend = s3
	default:
		backend = storage.NewLocal(config.MediaDir)
	}
	return storage.NewPublisher(backend, config.MediaDir), nil
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check endpoints
	r.HandleFunc("/health", h.HealthCheck).Methods("GET").Name("health")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	if config.MetricsEnabled && !config.SeparateMetricsServer() {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/fields", h.ListFields).Methods("GET")
	api.HandleFunc("/fields/{field}/accept", h.GetAccept).Methods("GET")
	api.HandleFunc("/uploads/{name}", h.GetUpload).Methods("GET")
	api.HandleFunc("/checksums/{checksum}", h.FindDuplicates).Methods("GET")

	uploads := api.PathPrefix("/uploads").Subrouter()
	uploads.Use(middleware.MaxBody(uploadBodyLimit(config.MaxUploadBytes)))
	uploads.HandleFunc("/{field}", h.Upload).Methods("POST")

	return r
}

func uploadBodyLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		return 0
	}
	return maxUpload + multipartOverhead
}

func handleShutdown(timeout time.Duration, trans *transcoder.Transcoder, monitor *memory.Monitor, servers ...*http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP servers")
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		}
	}
	startup.LogShutdownStepComplete("HTTP servers stopped")

	startup.LogShutdownStep("Stopping memory monitor")
	monitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	startup.LogShutdownComplete()
}
