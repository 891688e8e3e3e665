package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// SeedUser is an initial balance written on first run.
type SeedUser struct {
	ID   uint64
	Fiat int64
	BTC  int64
}

type Config struct {
	ListenAddr string
	DataDir    string // Pebble database path
	LogFile    string // empty = stdout only

	// Kafka trade feed; disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string

	SeedUsers []SeedUser
}

func Default() Config {
	return Config{
		ListenAddr: ":6543",
		DataDir:    "data/spotex.db",
		KafkaTopic: "spotex.trades",
		SeedUsers: []SeedUser{
			{ID: 1, Fiat: 10000, BTC: 0},
			{ID: 2, Fiat: 0, BTC: 10000},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("SEED_FIAT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SeedUsers[0].Fiat = n
		}
	}
	if v := os.Getenv("SEED_BTC"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SeedUsers[1].BTC = n
		}
	}

	return cfg
}
