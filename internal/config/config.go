package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	BLEAdapter string
	// BLEEnabled turns off the radio source entirely (useful for smoke
	// testing the bridge on hosts without an adapter).
	BLEEnabled bool

	TopicPrefix        string
	PublishQueueSize   int
	PublishMaxAttempts int
	PublishBackoffBase time.Duration
	DiscoveryInterval  time.Duration
	RegistryPruneAfter time.Duration

	// RealtimeTemp selects the unsmoothed per-advertisement temperature over
	// the device's internally aggregated one, for models that report both.
	RealtimeTemp bool
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPort, err := intFromEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "brood-flow"
	}

	bleAdapter := strings.TrimSpace(os.Getenv("BLE_ADAPTER"))
	if bleAdapter == "" {
		bleAdapter = "hci0"
	}

	bleEnabled := true
	if v := strings.TrimSpace(os.Getenv("BLE_ENABLED")); v != "" {
		bleEnabled, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BLE_ENABLED %q: %w", v, err)
		}
	}

	topicPrefix := strings.TrimSpace(os.Getenv("TOPIC_PREFIX"))
	if topicPrefix == "" {
		topicPrefix = "homeassistant"
	}
	topicPrefix = strings.TrimSuffix(topicPrefix, "/")

	queueSize, err := intFromEnv("PUBLISH_QUEUE_SIZE", 256)
	if err != nil {
		return Config{}, err
	}
	if queueSize <= 0 {
		return Config{}, fmt.Errorf("PUBLISH_QUEUE_SIZE must be positive, got %d", queueSize)
	}

	maxAttempts, err := intFromEnv("PUBLISH_MAX_ATTEMPTS", 5)
	if err != nil {
		return Config{}, err
	}
	if maxAttempts <= 0 {
		return Config{}, fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be positive, got %d", maxAttempts)
	}

	backoffBase, err := durationFromEnv("PUBLISH_BACKOFF_BASE", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}

	discoveryInterval, err := durationFromEnv("DISCOVERY_INTERVAL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	pruneAfter, err := durationFromEnv("REGISTRY_PRUNE_AFTER", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	realtimeTemp := false
	if v := strings.TrimSpace(os.Getenv("REALTIME_TEMP")); v != "" {
		realtimeTemp, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REALTIME_TEMP %q: %w", v, err)
		}
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		HTTPAddr:           httpAddr,
		MQTTBroker:         mqttBroker,
		MQTTPort:           mqttPort,
		MQTTClientID:       mqttClientID,
		BLEAdapter:         bleAdapter,
		BLEEnabled:         bleEnabled,
		TopicPrefix:        topicPrefix,
		PublishQueueSize:   queueSize,
		PublishMaxAttempts: maxAttempts,
		PublishBackoffBase: backoffBase,
		DiscoveryInterval:  discoveryInterval,
		RegistryPruneAfter: pruneAfter,
		RealtimeTemp:       realtimeTemp,
	}, nil
}

func intFromEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, v)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
