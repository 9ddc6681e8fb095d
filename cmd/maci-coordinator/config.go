package main

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vocdoni/maci-coordinator/coordinator"
	"github.com/vocdoni/maci-coordinator/db"
	"github.com/vocdoni/maci-coordinator/internal"
	"github.com/vocdoni/maci-coordinator/maci"
)

const (
	defaultAPIHost   = "0.0.0.0"
	defaultAPIPort   = 9090
	defaultLogLevel  = "info"
	defaultLogOutput = "stdout"
	defaultDBType    = db.TypePebble
	defaultDatadir   = ".maci-coordinator" // Will be prefixed with user's home directory
	defaultOutput    = "output"
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Coordinator CoordinatorConfig
	Round       RoundConfig
	API         APIConfig
	DB          DBConfig
	Log         LogConfig
	Datadir     string
	Output      string
	Artifacts   string
}

// CoordinatorConfig holds the coordinator key and proving settings
type CoordinatorConfig struct {
	PrivKey      string `mapstructure:"privkey"`
	ProofRetries int    `mapstructure:"retries"`
}

// RoundConfig holds the round to run and its parameters
type RoundConfig struct {
	ID                  string `mapstructure:"id"`
	Logs                string `mapstructure:"logs"`
	Deactivations       string `mapstructure:"deactivations"`
	StateTreeDepth      int    `mapstructure:"stateTreeDepth"`
	IntStateTreeDepth   int    `mapstructure:"intStateTreeDepth"`
	VoteOptionTreeDepth int    `mapstructure:"voteOptionTreeDepth"`
	BatchSize           int    `mapstructure:"batchSize"`
	MaxVoteOptions      int    `mapstructure:"maxVoteOptions"`
	NumSignUps          int    `mapstructure:"numSignUps"`
	QuadraticCost       bool   `mapstructure:"quadraticCost"`
	Deactivation        bool   `mapstructure:"deactivation"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// DBConfig holds the storage database configuration
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from args, environment variables, and
// defaults.
func loadConfig(args []string) (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	fs := flag.NewFlagSet("maci-coordinator", flag.ContinueOnError)
	fs.StringP("coordinator.privkey", "k", "", "coordinator private key, decimal or 0x-prefixed hex (required)")
	fs.Int("coordinator.retries", coordinator.DefaultProofRetries, "number of times a failed proof is retried")
	fs.String("round.id", "", "round UUID (defaults to a UUID derived from the contract logs)")
	fs.StringP("round.logs", "f", "", "contract logs JSON file (required)")
	fs.String("round.deactivations", "", "processed deactivations JSON file of a previous run")
	fs.Int("round.stateTreeDepth", 2, "state tree depth")
	fs.Int("round.intStateTreeDepth", 1, "intermediate state tree depth, sets the tally batch size")
	fs.Int("round.voteOptionTreeDepth", 1, "vote option tree depth")
	fs.Int("round.batchSize", 5, "message batch size")
	fs.Int("round.maxVoteOptions", 5, "number of vote options")
	fs.Int("round.numSignUps", 0, "number of sign-ups (defaults to the sign-ups in the logs)")
	fs.Bool("round.quadraticCost", false, "charge the square of the vote weight")
	fs.Bool("round.deactivation", false, "enable the key deactivation extension")
	fs.Bool("api.enabled", false, "serve the HTTP API and keep running after the round ends")
	fs.StringP("api.host", "a", defaultAPIHost, "API host")
	fs.IntP("api.port", "p", defaultAPIPort, "API port")
	fs.String("db.type", defaultDBType, fmt.Sprintf("database type %v", db.AvailableTypes))
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.StringP("datadir", "d", defaultDatadirPath, "data directory for the database")
	fs.String("output", defaultOutput, "directory where the round inputs, proofs and results are written")
	fs.String("artifacts", "", "directory with <circuit>.wasm and <circuit>.zkey files, proofs are skipped if empty")

	fs.Usage = func() { usage(os.Stderr, fs) }
	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Configure Viper to use environment variables
	v.SetEnvPrefix("MACI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "maci-coordinator v%s\n\n", Version)
	fmt.Fprintf(w, "Usage: maci-coordinator [flags]\n\n")
	fmt.Fprintf(w, "Flags:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nEnvironment variables are also available with the same name as flags,\n")
	fmt.Fprintf(w, "  except for dots (.) which are replaced by underscores (_).\n")
	fmt.Fprintf(w, "  For example, MACI_COORDINATOR_PRIVKEY or MACI_API_PORT\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  # Generate the circuit inputs of a round\n")
	fmt.Fprintf(w, "  maci-coordinator -k 0x123... -f logs.json --round.maxVoteOptions=3\n\n")
	fmt.Fprintf(w, "  # Prove the round and serve the results\n")
	fmt.Fprintf(w, "  maci-coordinator -k 0x123... -f logs.json --artifacts=./zkeys --api.enabled\n")
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Coordinator.PrivKey == "" {
		return fmt.Errorf("coordinator private key is required (use --coordinator.privkey flag or MACI_COORDINATOR_PRIVKEY environment variable)")
	}
	if _, err := parsePrivKey(cfg.Coordinator.PrivKey); err != nil {
		return err
	}
	if cfg.Round.Logs == "" {
		return fmt.Errorf("contract logs file is required (use --round.logs flag or MACI_ROUND_LOGS environment variable)")
	}
	if cfg.Round.ID != "" {
		if _, err := uuid.Parse(cfg.Round.ID); err != nil {
			return fmt.Errorf("invalid round id %q: %w", cfg.Round.ID, err)
		}
	}
	if !slices.Contains(db.AvailableTypes, cfg.DB.Type) {
		return fmt.Errorf("invalid database type %s, available types: %v", cfg.DB.Type, db.AvailableTypes)
	}
	if cfg.Coordinator.ProofRetries < 0 {
		return fmt.Errorf("proof retries cannot be negative")
	}
	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("invalid API port %d", cfg.API.Port)
	}
	return nil
}

// parsePrivKey parses a decimal or 0x-prefixed hexadecimal private key.
func parsePrivKey(s string) (*big.Int, error) {
	k, ok := new(big.Int), false
	if hex, found := strings.CutPrefix(strings.ToLower(s), "0x"); found {
		_, ok = k.SetString(hex, 16)
	} else {
		_, ok = k.SetString(s, 10)
	}
	if !ok || k.Sign() <= 0 {
		return nil, fmt.Errorf("invalid coordinator private key")
	}
	return k, nil
}

// maciConfig builds the round parameters. A zero NumSignUps takes the
// number of sign-ups in the logs.
func (rc RoundConfig) maciConfig(logs *coordinator.ContractLogs) maci.Config {
	numSignUps := rc.NumSignUps
	if numSignUps == 0 && logs != nil {
		numSignUps = len(logs.States)
	}
	return maci.Config{
		StateTreeDepth:      rc.StateTreeDepth,
		IntStateTreeDepth:   rc.IntStateTreeDepth,
		VoteOptionTreeDepth: rc.VoteOptionTreeDepth,
		BatchSize:           rc.BatchSize,
		MaxVoteOptions:      rc.MaxVoteOptions,
		NumSignUps:          numSignUps,
		QuadraticCost:       rc.QuadraticCost,
		Deactivation:        rc.Deactivation,
	}
}

// roundID returns the configured round ID, or a UUID derived from the
// contract logs so that a rerun resumes the same round.
func (rc RoundConfig) roundID(logsData []byte) uuid.UUID {
	if rc.ID != "" {
		return uuid.MustParse(rc.ID)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, logsData)
}
