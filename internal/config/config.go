package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level     string
	Format    string
	Output    string
	FilePath  string
	AddSource bool
}

// LocalnetConfig describes the in-process deployment: program IDs, genesis
// mints and the faucet.
type LocalnetConfig struct {
	Variant            string
	LRTProgramID       solana.PublicKey
	AVSProgramID       solana.PublicKey
	RestakingProgramID solana.PublicKey
	InputMint          solana.PublicKey
	InputDecimals      uint8
	RestakedMint       solana.PublicKey
	AVSTokenMint       solana.PublicKey
	FaucetAuthority    solana.PublicKey
	FaucetMaxAmount    uint64
	FaucetEnabled      bool
	// DelegateAuthority is installed on pools created without an explicit
	// authority. Zero means the creator becomes the authority.
	DelegateAuthority solana.PublicKey
	Log               LogConfig
}

type AuditorConfig struct {
	PollInterval time.Duration
	Log          LogConfig
}

type IndexerConfig struct {
	DBDSN            string
	SnapshotInterval time.Duration
	ReceiptBuffer    int
	Log              LogConfig
}

type APIServerConfig struct {
	ListenAddr     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	Log            LogConfig
}

var (
	defaultLRTProgramID       = solana.MustPublicKeyFromBase58("5Bb4XHR5QbQE8MHdQBCobPFbDJD2b1zowxut7kd25uhR")
	defaultAVSProgramID       = solana.MustPublicKeyFromBase58("GLJjzErBXcvN9bGbi5qCr4bqdWT8w2xUa4oEHy6hwZbu")
	defaultRestakingProgramID = solana.MustPublicKeyFromBase58("3Za6WCR7G6ytoHMRjcKsf9WHofj8opQqDREwVs46keT6")
	defaultInputMint          = solana.MustPublicKeyFromBase58("5RW2fjGXjJi1pzmtuP2Zk9u7UZtnQJfUaMNmZZFANefQ")
	defaultRestakedMint       = solana.MustPublicKeyFromBase58("6pp5kswJiHdCpFV9CkH6q5KrNEWTkdkzPbopG1qL19mp")
	defaultAVSTokenMint       = solana.MustPublicKeyFromBase58("EJqid9Cp4WGvmb7gbSMttBpedquX89yP2ewpb2PmppCw")
)

func LoadLocalnetConfig() (LocalnetConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return LocalnetConfig{}, err
	}

	variant, err := envVariant("LRT_VARIANT", "direct")
	if err != nil {
		return LocalnetConfig{}, err
	}

	lrtProgramID, err := envPubkey("LRT_PROGRAM_ID", defaultLRTProgramID)
	if err != nil {
		return LocalnetConfig{}, err
	}
	avsProgramID, err := envPubkey("AVS_PROGRAM_ID", defaultAVSProgramID)
	if err != nil {
		return LocalnetConfig{}, err
	}
	restakingProgramID, err := envPubkey("RESTAKING_PROGRAM_ID", defaultRestakingProgramID)
	if err != nil {
		return LocalnetConfig{}, err
	}
	inputMint, err := envPubkey("LRT_INPUT_MINT", defaultInputMint)
	if err != nil {
		return LocalnetConfig{}, err
	}
	restakedMint, err := envPubkey("LRT_RESTAKED_MINT", defaultRestakedMint)
	if err != nil {
		return LocalnetConfig{}, err
	}
	avsTokenMint, err := envPubkey("AVS_TOKEN_MINT", defaultAVSTokenMint)
	if err != nil {
		return LocalnetConfig{}, err
	}
	decimals, err := envUint8("LRT_INPUT_DECIMALS", 9)
	if err != nil {
		return LocalnetConfig{}, err
	}
	faucetMax, err := envUint64("FAUCET_MAX_AMOUNT", 1_000_000_000_000)
	if err != nil {
		return LocalnetConfig{}, err
	}

	faucetEnabled, err := envBool("FAUCET_ENABLED", true)
	if err != nil {
		return LocalnetConfig{}, err
	}

	faucetAuthority, err := envAuthority("FAUCET_AUTHORITY", "FAUCET_KEYPAIR_PATH")
	if err != nil {
		return LocalnetConfig{}, err
	}
	delegateAuthority, err := envAuthority("LRT_DELEGATE_AUTHORITY", "LRT_DELEGATE_AUTHORITY_KEYPAIR_PATH")
	if err != nil {
		return LocalnetConfig{}, err
	}

	return LocalnetConfig{
		Variant:            variant,
		LRTProgramID:       lrtProgramID,
		AVSProgramID:       avsProgramID,
		RestakingProgramID: restakingProgramID,
		InputMint:          inputMint,
		InputDecimals:      decimals,
		RestakedMint:       restakedMint,
		AVSTokenMint:       avsTokenMint,
		FaucetAuthority:    faucetAuthority,
		FaucetMaxAmount:    faucetMax,
		FaucetEnabled:      faucetEnabled,
		DelegateAuthority:  delegateAuthority,
		Log:                buildLogConfig("LOCALNET", "localnet"),
	}, nil
}

func LoadAuditorConfig() (AuditorConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return AuditorConfig{}, err
	}
	pollInterval, err := envDuration("AUDITOR_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return AuditorConfig{}, err
	}
	return AuditorConfig{
		PollInterval: pollInterval,
		Log:          buildLogConfig("AUDITOR", "auditor"),
	}, nil
}

// LoadIndexerConfig reads the journal settings. An empty DSN disables the
// indexer.
func LoadIndexerConfig() (IndexerConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return IndexerConfig{}, err
	}
	snapshotInterval, err := envDuration("INDEXER_SNAPSHOT_INTERVAL", 30*time.Second)
	if err != nil {
		return IndexerConfig{}, err
	}
	receiptBuffer, err := envInt("INDEXER_RECEIPT_BUFFER", 256)
	if err != nil {
		return IndexerConfig{}, err
	}
	return IndexerConfig{
		DBDSN:            envOrDefault("INDEXER_DB_DSN", ""),
		SnapshotInterval: snapshotInterval,
		ReceiptBuffer:    receiptBuffer,
		Log:              buildLogConfig("INDEXER", "indexer"),
	}, nil
}

func LoadAPIServerConfig() (APIServerConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return APIServerConfig{}, err
	}

	readTimeout, err := envDuration("API_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	writeTimeout, err := envDuration("API_SERVER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	idleTimeout, err := envDuration("API_SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}

	allowedOrigins := parseCSVEnv(
		envOrDefault("API_SERVER_ALLOWED_ORIGINS", "*"),
		[]string{"*"},
	)

	return APIServerConfig{
		ListenAddr:     envOrDefault("API_SERVER_LISTEN_ADDR", ":8080"),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		AllowedOrigins: allowedOrigins,
		Log:            buildLogConfig("API_SERVER", "api-server"),
	}, nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	setting := func(name, fallback string) string {
		return envOrDefault(prefix+"_LOG_"+name, envOrDefault("LOG_"+name, fallback))
	}
	return LogConfig{
		Level:     setting("LEVEL", "info"),
		Format:    setting("FORMAT", "text"),
		Output:    setting("OUTPUT", "console"),
		FilePath:  setting("FILE", filepath.Join(".docker", serviceName, serviceName+".log")),
		AddSource: strings.EqualFold(setting("ADD_SOURCE", "false"), "true"),
	}
}

// envParse reads key through parse, returning fallback when the key is unset.
func envParse[T any](key string, fallback T, parse func(string) (T, error)) (T, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	return envParse(key, fallback, solana.PublicKeyFromBase58)
}

func envVariant(key, fallback string) (string, error) {
	return envParse(key, fallback, func(raw string) (string, error) {
		switch v := strings.ToLower(raw); v {
		case "direct", "restaked":
			return v, nil
		default:
			return "", fmt.Errorf("%q (expected direct|restaked)", raw)
		}
	})
}

func envUint8(key string, fallback uint8) (uint8, error) {
	return envParse(key, fallback, func(raw string) (uint8, error) {
		v, err := strconv.ParseUint(raw, 10, 8)
		return uint8(v), err
	})
}

func envUint64(key string, fallback uint64) (uint64, error) {
	return envParse(key, fallback, func(raw string) (uint64, error) {
		return strconv.ParseUint(raw, 10, 64)
	})
}

func envBool(key string, fallback bool) (bool, error) {
	return envParse(key, fallback, strconv.ParseBool)
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	return envParse(key, fallback, func(raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			err = errors.New("must be > 0")
		}
		return d, err
	})
}

func envInt(key string, fallback int) (int, error) {
	return envParse(key, fallback, func(raw string) (int, error) {
		v, err := strconv.Atoi(raw)
		if err == nil && v <= 0 {
			err = errors.New("must be > 0")
		}
		return v, err
	})
}

// envAuthority resolves a key from an explicit public key or, failing that,
// from a solana-keygen keypair file. Neither set yields the zero key.
func envAuthority(pubkeyKey, keypairKey string) (solana.PublicKey, error) {
	pk, err := envPubkey(pubkeyKey, solana.PublicKey{})
	if err != nil || !pk.IsZero() {
		return pk, err
	}
	path := valueForKey(keypairKey)
	if path == "" {
		return solana.PublicKey{}, nil
	}
	expanded, err := expandHomePath(path)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("expand %s: %w", keypairKey, err)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(expanded)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("load %s %q: %w", keypairKey, expanded, err)
	}
	return key.PublicKey(), nil
}

func envOrDefault(key, fallback string) string {
	if value := valueForKey(key); value != "" {
		return value
	}
	return fallback
}

func parseCSVEnv(raw string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func expandHomePath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, rest), nil
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigErr = loadRuntimeConfig()
	})
	return runtimeConfigErr
}

// loadRuntimeConfig reads config/config-<CONFIG_PHASE>.yaml, or CONFIG_FILE
// when set. A missing default file is not an error.
func loadRuntimeConfig() error {
	runtimeConfigValues = map[string]string{}
	runtimeConfigPhase = strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
	if runtimeConfigPhase == "" {
		runtimeConfigPhase = "local"
	}

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join("config", "config-"+runtimeConfigPhase+".yaml")
	}

	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	values, err := flattenConfig(raw)
	if err != nil {
		return fmt.Errorf("flatten config file %q: %w", path, err)
	}

	runtimeConfigValues = values
	runtimeConfigLoaded = true
	runtimeConfigPath = path
	if abs, err := filepath.Abs(path); err == nil {
		runtimeConfigPath = abs
	}
	return nil
}

// flattenConfig turns nested YAML into env-style keys: lrt.program-id
// becomes LRT_PROGRAM_ID. Lists are joined with commas.
func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	if err := flattenInto(out, "", raw); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]string, prefix string, value any) error {
	join := func(key string) string {
		segment := normalizeKeySegment(key)
		if segment == "" {
			return ""
		}
		if prefix == "" {
			return segment
		}
		return prefix + "_" + segment
	}

	switch typed := value.(type) {
	case nil:
	case map[string]any:
		for key, child := range typed {
			if name := join(key); name != "" {
				if err := flattenInto(out, name, child); err != nil {
					return err
				}
			}
		}
	case map[any]any:
		for key, child := range typed {
			text, ok := key.(string)
			if !ok {
				return fmt.Errorf("unsupported map key type %T under %q", key, prefix)
			}
			if name := join(text); name != "" {
				if err := flattenInto(out, name, child); err != nil {
					return err
				}
			}
		}
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch item.(type) {
			case map[string]any, map[any]any, []any:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
			if text := strings.TrimSpace(fmt.Sprint(item)); text != "" && item != nil {
				parts = append(parts, text)
			}
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		out[prefix] = fmt.Sprint(typed)
	}
	return nil
}

func normalizeKeySegment(raw string) string {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToUpper(strings.Join(words, "_"))
}

// valueForKey prefers the process environment over the config file.
func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	if ensureRuntimeConfigLoaded() != nil {
		return ""
	}
	return strings.TrimSpace(runtimeConfigValues[key])
}
