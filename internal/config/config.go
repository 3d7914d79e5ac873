package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration (spec §6's CLI surface).
type Config struct {
	Verbose bool
	Debug   bool
	LogFile string

	DisableWiFi bool
	DisableBT   bool

	UploadToAWS bool
	BucketName  string

	NoCheckRequirements bool

	MaxPacketCount   int
	MaxWindowSeconds int
	PacketTimeout    int // capture watchdog, seconds
	BatcherTimeout   int // batcher queue-starvation close, seconds
	MaxErrorCount    int // uploader error budget
}

// Load parses command line flags and environment variables to populate
// Config. Flags take precedence over environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogFile:          getEnv("REMOTEID_LOG_FILE", "logs/debug.log"),
		DisableWiFi:      getEnvBool("REMOTEID_DISABLE_WIFI", false),
		DisableBT:        getEnvBool("REMOTEID_DISABLE_BT", true),
		UploadToAWS:      getEnvBool("REMOTEID_UPLOAD_TO_AWS", true),
		BucketName:       getEnv("REMOTEID_BUCKET_NAME", "cursed-remoteid-data"),
		MaxPacketCount:   getEnvInt("REMOTEID_MAX_PACKET_COUNT", 100),
		MaxWindowSeconds: getEnvInt("REMOTEID_MAX_WINDOW_SECONDS", 300),
		PacketTimeout:    getEnvInt("REMOTEID_PACKET_TIMEOUT", 900),
		BatcherTimeout:   getEnvInt("REMOTEID_BATCHER_TIMEOUT", 120),
		MaxErrorCount:    getEnvInt("REMOTEID_MAX_ERROR_COUNT", 5),
	}

	var noUploadToAWS bool

	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "path to the log file")
	flag.BoolVar(&cfg.DisableWiFi, "disable-wifi", cfg.DisableWiFi, "disable the Wi-Fi capture path")
	flag.BoolVar(&cfg.DisableBT, "disable-bt", cfg.DisableBT, "disable the Bluetooth LE capture path")
	flag.BoolVar(&cfg.UploadToAWS, "upload-to-aws", cfg.UploadToAWS, "upload completed CSV windows to the object store")
	flag.BoolVar(&noUploadToAWS, "no-upload-to-aws", false, "disable upload (overrides --upload-to-aws)")
	flag.StringVar(&cfg.BucketName, "bucket-name", cfg.BucketName, "destination bucket name")
	flag.BoolVar(&cfg.NoCheckRequirements, "no-check-requirements", cfg.NoCheckRequirements, "skip external tool and dissector protocol checks")

	flag.Parse()

	if noUploadToAWS {
		cfg.UploadToAWS = false
	}

	return cfg, cfg.Validate()
}

// Validate enforces the invariant spec §6 names explicitly: at least one
// of the two capture paths must remain enabled.
func (c *Config) Validate() error {
	if c.DisableWiFi && c.DisableBT {
		return fmt.Errorf("config: at least one of wifi or bluetooth capture must remain enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
