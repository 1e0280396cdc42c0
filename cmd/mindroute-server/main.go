package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/mindnote/mindroute/internal/server"
)

// Version information - set during build.
var (
	version   = "dev"
	commitSHA = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mindroute version %s\n", version)
		fmt.Printf("Commit: %s\n", commitSHA)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	config, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	srv.WaitForShutdown()
}

// loadConfig loads configuration from file and environment variables.
func loadConfig(configFile string) (*server.Config, error) {
	viper.SetConfigFile(configFile)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MINDROUTE")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fmt.Println("Config file not found, using defaults")
	}

	var config server.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults sets sensible default values for configuration.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Routing defaults; a zero daily budget disables budget enforcement
	viper.SetDefault("routing.daily_budget", 0.0)
	viper.SetDefault("routing.health_interval", 30*time.Second)
	viper.SetDefault("routing.probe_timeout", 10*time.Second)
	viper.SetDefault("routing.perf_window_size", 50)

	// Observability defaults
	viper.SetDefault("observability.logging.level", "info")
	viper.SetDefault("observability.logging.format", "json")
	viper.SetDefault("observability.logging.output_path", "logs/app.log")
	viper.SetDefault("observability.logging.error_path", "logs/error.log")
	viper.SetDefault("observability.logging.development", false)

	viper.SetDefault("observability.metrics.enabled", true)
	viper.SetDefault("observability.metrics.port", 9090)
	viper.SetDefault("observability.metrics.path", "/metrics")

	viper.SetDefault("observability.tracing.enabled", false)
	viper.SetDefault("observability.tracing.service_name", "mindroute")
	viper.SetDefault("observability.tracing.environment", "development")

	// Provider family defaults
	for _, name := range []string{"openai", "anthropic", "local", "qwen"} {
		viper.SetDefault("providers."+name+".enabled", false)
		viper.SetDefault("providers."+name+".timeout", 30*time.Second)
		viper.SetDefault("providers."+name+".max_retries", 2)
		viper.SetDefault("providers."+name+".retry_delay", 500*time.Millisecond)
		viper.SetDefault("providers."+name+".cache_ttl", 5*time.Minute)
		viper.SetDefault("providers."+name+".cache_size", 1000)
	}
	viper.SetDefault("providers.local.base_url", "http://localhost:11434")
}
