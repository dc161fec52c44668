package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AutoRefundWindow is the fixed delay after escrow creation past which anyone
// may trigger a refund. Mirrors the on-chain constant.
var AutoRefundWindow = 30 * 24 * time.Hour

// Server captures process-level configuration loaded once in main.
type Server struct {
	Addr string

	// Ledger endpoints. The ledger node serves the direct read/write path,
	// the archivist serves the archival query fallback, the diviner serves
	// location consensus queries.
	LedgerRPCURL string
	ArchivistURL string
	DivinerURL   string

	// Administrative subsystem switches. Disabling a subsystem is a policy
	// decision, not a failure: verification skips the archival fallback and
	// diviner queries return a deterministic mock consensus.
	ArchivistDisabled bool
	DivinerDisabled   bool

	// Strategy selection, fixed at construction time.
	MockPayments bool
	MockProofs   bool

	// Settlement parameters.
	AssetSymbol      string
	AuthorityKey     string
	EscrowContract   string
	ConfirmationWait time.Duration
	RPCTimeout       time.Duration
	ReconcileEvery   time.Duration

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:              envOr("CHAINCHECK_ADDR", ":8080"),
		LedgerRPCURL:      envOr("LEDGER_RPC_URL", "http://localhost:8545"),
		ArchivistURL:      os.Getenv("ARCHIVIST_URL"),
		DivinerURL:        os.Getenv("DIVINER_URL"),
		ArchivistDisabled: boolEnv("ARCHIVIST_DISABLED"),
		DivinerDisabled:   boolEnv("DIVINER_DISABLED"),
		MockPayments:      boolEnv("MOCK_PAYMENTS"),
		MockProofs:        boolEnv("MOCK_PROOFS"),
		AssetSymbol:       envOr("SETTLEMENT_ASSET", "ETH"),
		AuthorityKey:      os.Getenv("SETTLEMENT_AUTHORITY_KEY"),
		EscrowContract:    os.Getenv("ESCROW_CONTRACT_ADDRESS"),
		ConfirmationWait:  durationEnv("CONFIRMATION_WAIT", 90*time.Second),
		RPCTimeout:        durationEnv("LEDGER_RPC_TIMEOUT", 8*time.Second),
		ReconcileEvery:    durationEnv("RECONCILE_INTERVAL", time.Minute),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		RedisURL:          os.Getenv("REDIS_URL"),
		KafkaTopic:        envOr("AUDIT_TOPIC", "chaincheck.settlement.audit"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	// No signing credential means no funded wallet: fall back to the mock
	// settlement backend rather than failing at the first deposit.
	if cfg.AuthorityKey == "" {
		cfg.MockPayments = true
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	return os.Getenv(key) == "true"
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
