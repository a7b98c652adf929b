package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"media-ingest/internal/limits"
	"media-ingest/internal/logging"
	"media-ingest/internal/memory"
	"media-ingest/internal/storage"
	"media-ingest/internal/validation"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	MediaDir        string `env:"MEDIA_DIR" envDefault:"/media"`
	TempDir         string `env:"TEMP_DIR" envDefault:"/tmp/media-ingest"`
	DatabaseDir     string `env:"DATABASE_DIR" envDefault:"/database"`
	Port            string `env:"PORT" envDefault:"8080"`
	MetricsPort     string `env:"METRICS_PORT" envDefault:"9090"`
	MetricsEnabled  bool   `env:"METRICS_ENABLED" envDefault:"true"`
	LogHealthChecks bool   `env:"LOG_HEALTH_CHECKS" envDefault:"true"`

	// PolicyFile is a YAML upload policy. Empty means the built-in policy.
	PolicyFile     string `env:"POLICY_FILE"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"1073741824"`

	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	// TranscodeWorkers overrides the CPU-derived transcode concurrency.
	TranscodeWorkers int `env:"TRANSCODE_WORKERS"`

	MemoryLimit int64   `env:"MEMORY_LIMIT"`
	MemoryRatio float64 `env:"MEMORY_RATIO" envDefault:"0.85"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	StorageBackend string           `env:"STORAGE_BACKEND" envDefault:"local"`
	S3             storage.S3Config `envPrefix:"S3_"`

	// Derived paths
	DatabasePath string `env:"-"`
}

// LoadConfig loads and validates configuration from environment variables
// and an optional .env file in the working directory.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	if err := godotenv.Load(); err == nil {
		logging.Info("  Loaded environment from .env")
	}

	section("CONFIGURATION")

	config, err := parseConfig()
	if err != nil {
		return nil, err
	}

	logging.Info("  MEDIA_DIR:           %s", config.MediaDir)
	logging.Info("  TEMP_DIR:            %s", config.TempDir)
	logging.Info("  DATABASE_DIR:        %s", config.DatabaseDir)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_PORT:        %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  POLICY_FILE:         %s", orDefault(config.PolicyFile, "(built-in)"))
	logging.Info("  MAX_UPLOAD_BYTES:    %s", validation.FileSizeFormat(config.MaxUploadBytes))
	logging.Info("  STORAGE_BACKEND:     %s", config.StorageBackend)
	if config.StorageBackend == "s3" {
		logging.Info("  S3_BUCKET:           %s", config.S3.Bucket)
		logging.Info("  S3_REGION:           %s", config.S3.Region)
		logging.Info("  S3_ENDPOINT:         %s", orDefault(config.S3.Endpoint, "(aws)"))
	}
	logging.Info("  FFMPEG_PATH:         %s", config.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", config.FFprobePath)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	section("DIRECTORY SETUP")

	for _, dir := range []struct {
		name string
		path *string
	}{
		{"media", &config.MediaDir},
		{"temp", &config.TempDir},
		{"database", &config.DatabaseDir},
	} {
		abs, err := filepath.Abs(*dir.path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s directory path: %w", dir.name, err)
		}
		*dir.path = abs
		logging.Info("  %s directory (absolute): %s", strings.ToUpper(dir.name[:1])+dir.name[1:], abs)

		if err := ensureDirectory(abs, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		logging.Debug("  Testing %s directory write access...", dir.name)
		if err := testWriteAccess(abs); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	config.DatabasePath = filepath.Join(config.DatabaseDir, "media-ingest.db")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    S3 storage:  %s", enabledString(config.StorageBackend == "s3"))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// parseConfig reads the environment into a Config and checks it.
func parseConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	config.StorageBackend = strings.ToLower(strings.TrimSpace(config.StorageBackend))
	config.S3.Bucket = strings.TrimSpace(config.S3.Bucket)
	config.S3.AccessKeyID = strings.TrimSpace(config.S3.AccessKeyID)
	config.S3.SecretAccessKey = strings.TrimSpace(config.S3.SecretAccessKey)
	config.S3.Endpoint = strings.TrimSpace(config.S3.Endpoint)

	switch config.StorageBackend {
	case "local":
	case "s3":
		if config.S3.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (want local or s3)", config.StorageBackend)
	}

	if config.MaxUploadBytes < 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must not be negative")
	}
	return config, nil
}

// SeparateMetricsServer reports whether metrics are served on their own port.
func (c *Config) SeparateMetricsServer() bool {
	return c.MetricsEnabled && c.MetricsPort != "" && c.MetricsPort != c.Port
}

// LoadPolicy reads the upload policy named by the config, or the built-in
// policy when none is configured.
func LoadPolicy(config *Config) (*limits.Policy, error) {
	section("UPLOAD POLICY")

	var (
		policy *limits.Policy
		err    error
	)
	if config.PolicyFile == "" {
		policy = limits.DefaultPolicy()
		logging.Info("  Using built-in policy")
	} else {
		policy, err = limits.LoadPolicy(config.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		logging.Info("  Loaded %s", config.PolicyFile)
	}

	for _, name := range policy.FieldNames() {
		field, _ := policy.Field(name)
		logging.Info("  Field %-16s -> %s (file types: %s)", name, field.Collection,
			orDefault(strings.Join(field.Validation.FileType, ", "), "any"))
	}
	return policy, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// LogMemoryConfig logs the outcome of memory limit configuration
func LogMemoryConfig(limit memory.Limit) {
	section("MEMORY CONFIGURATION")
	switch limit.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT set explicitly (%d bytes)", limit.GoMemLimit)
	case "MEMORY_LIMIT":
		logging.Info("  GOMEMLIMIT: %d bytes (%.0f%% of %d)", limit.GoMemLimit, limit.Ratio*100, limit.ContainerLimit)
	default:
		logging.Info("  No memory limit configured")
	}
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTranscoderInit logs transcoder initialization and checks the external tools
func LogTranscoderInit(config *Config, workers int, imageProcessor string) {
	section("TRANSCODER INITIALIZATION")

	for _, tool := range []string{config.FFmpegPath, config.FFprobePath} {
		if err := checkTool(tool); err != nil {
			logging.Warn("  %s check failed: %v", filepath.Base(tool), err)
			logging.Warn("  Video uploads will fail until it is installed")
		} else {
			logging.Info("  [OK] %s is available", filepath.Base(tool))
		}
	}
	logging.Info("  Image processor:    %s", imageProcessor)
	logging.Info("  Transcode workers:  %d", workers)
}

// LogStorageInit logs the storage backend in use
func LogStorageInit(backend string) {
	section("STORAGE INITIALIZATION")
	logging.Info("  [OK] Publishing artifacts to %s storage", backend)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes prints the route table when debug logging is on.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		logRouteTable(router)
	}

	state := "OFF (set LOG_HEALTH_CHECKS=true to enable)"
	if logHealthChecks {
		state = "ON"
	}
	logging.Info("  Access log: W3C extended format")
	logging.Info("  Probe requests in access log: %s", state)
}

func logRouteTable(router *mux.Router) {
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  route walk stopped early: %v", err)
	}

	byGroup := map[string][]RouteInfo{}
	var names []string
	for _, route := range routes {
		g := getRouteGroup(route.Path)
		if _, seen := byGroup[g]; !seen {
			names = append(names, g)
		}
		byGroup[g] = append(byGroup[g], route)
	}
	sort.Strings(names)

	logging.Debug("  %d routes registered", len(routes))
	for _, g := range names {
		label := g
		if label == "" {
			label = "root"
		}
		logging.Debug("  [%s]", label)
		for _, route := range byGroup[g] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup buckets a path by its first segment, or by the first two
// for /api paths.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first != "api" || rest == "" {
		return first
	}
	sub, _, _ := strings.Cut(rest, "/")
	return "api/" + sub
}

// ServerConfig describes the listeners for the startup summary.
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted prints the endpoints once the listeners are up.
func LogServerStarted(config ServerConfig) {
	section("READY")
	logging.Info("  Started in %v", config.StartupDuration)
	logging.Info("  Upload endpoint:  http://0.0.0.0:%s/api/uploads/{field}", config.Port)
	logging.Info("  Field listing:    http://0.0.0.0:%s/api/fields", config.Port)
	metricsURL := "DISABLED"
	if config.MetricsEnabled {
		metricsURL = fmt.Sprintf("http://0.0.0.0:%s/metrics", config.MetricsPort)
	}
	logging.Info("  Metrics:          %s", metricsURL)
	logging.Info(rule)
}

func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN (%s)", signal))
}

func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits with status 1.
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

const rule = "------------------------------------------------------------"

// section prints a blank line and a ruled heading.
func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info(title)
	logging.Info(rule)
}

const banner = `
                    _ _             _                       _
  _ __ ___   ___  __| (_) __ _     (_)_ __   __ _  ___  ___| |_
 | '_ ' _ \ / _ \/ _' | |/ _' |____| | '_ \ / _' |/ _ \/ __| __|
 | | | | | |  __/ (_| | | (_| |____| | | | | (_| |  __/\__ \ |_
 |_| |_| |_|\___|\__,_|_|\__,_|    |_|_| |_|\__, |\___||___/\__|
                                            |___/`

func printBanner() {
	fmt.Println(rule + banner + "\n" + rule)
	info := GetBuildInfo()
	logging.Info("  %s (commit %s, built %s)", info.Version, info.Commit, info.BuildTime)
	logging.Info("  Started at %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM")
	procs := runtime.GOMAXPROCS(0)
	logging.Info("  %s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs: %d, GOMAXPROCS: %d", runtime.NumCPU(), procs)
	if procs < runtime.NumCPU() {
		logging.Info("  GOMAXPROCS is below the CPU count, a CPU quota is likely in effect")
	}
	if !logging.IsDebugEnabled() {
		return
	}
	if wd, err := os.Getwd(); err == nil {
		logging.Debug("  cwd:  %s", wd)
	}
	if host, err := os.Hostname(); err == nil {
		logging.Debug("  host: %s", host)
	}
}

// ensureDirectory creates path if missing and fails if it names a file.
func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("%s is a file, not a directory", path)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s directory: %w", name, err)
	}
	logging.Debug("  created %s directory %s", name, path)
	return nil
}

// testWriteAccess creates and removes a scratch file in dir.
func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Remove(name); err != nil {
		logging.Warn("  could not remove write probe %s: %v", name, err)
	}
	return nil
}

// checkTool verifies an ffmpeg-family binary resolves and runs.
func checkTool(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("run %s -version: %w", path, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	logging.Debug("  %s: %s", path, strings.TrimSpace(first))
	return nil
}
