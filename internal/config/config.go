// Package config loads the bootstrap NodeConfig the core is wired from:
// plain environment variables, with an optional Vault KV v2 overlay for
// secrets, mirroring the pattern the rest of this codebase's services
// use for startup configuration (SPEC_FULL.md §4.9). No validation is
// performed here; that remains the excluded YAML-loader collaborator's
// job (spec.md §1 Non-goals).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// NodeType mirrors spec.md §6's nodeType enum.
type NodeType string

const (
	Primary NodeType = "primary"
	Replica NodeType = "replica"
)

// Journal carries the recorded-but-unacted-upon journal fields
// (spec.md Open Question (b)).
type Journal struct {
	Strategy string
	Size     int
}

// ReplicaConfig is one entry of NodeConfig's replica list. Per spec.md
// §6, replica records must not themselves carry a journal field.
type ReplicaConfig struct {
	Name string
	Addr string
}

// NodeConfig is the Go representation of the validated configuration
// record spec.md §6 describes. It carries fields the core does not
// itself consume: Journal is only logged at startup, and Database is
// carried but neither logged nor read.
type NodeConfig struct {
	NodeType NodeType
	Name     string
	IP       string
	Host     string
	Port     int
	Database string
	Journal  Journal
	Replicas []ReplicaConfig

	ListenAddr      string
	DiagnosticsAddr string
	NATSURL         string
}

const (
	envNodeType        = "GUARADICT_NODE_TYPE"
	envNodeName        = "GUARADICT_NODE_NAME"
	envHost            = "GUARADICT_HOST"
	envPort            = "GUARADICT_PORT"
	envDatabase        = "GUARADICT_DATABASE"
	envJournalStrategy = "GUARADICT_JOURNAL_STRATEGY"
	envJournalSize     = "GUARADICT_JOURNAL_SIZE"
	envReplicas        = "GUARADICT_REPLICAS"
	envDiagnosticsAddr = "GUARADICT_DIAGNOSTICS_ADDR"
	envNATSURL         = "NATS_URL"
	envVaultAddr       = "VAULT_ADDR"
	envVaultToken      = "VAULT_TOKEN"
	envVaultSecretPath = "VAULT_SECRET_PATH"
)

// Load populates a NodeConfig from environment variables, applying
// hardcoded defaults suitable for local development. When VAULT_ADDR is
// set, secrets (currently just NATS_URL) are overlaid from Vault KV v2,
// overriding the environment value when present.
func Load(logger *zap.Logger) (NodeConfig, error) {
	cfg := NodeConfig{
		NodeType:        NodeType(getEnv(envNodeType, string(Primary))),
		Name:            getEnv(envNodeName, "node-1"),
		Host:            getEnv(envHost, "0.0.0.0"),
		Database:        os.Getenv(envDatabase),
		Port:            getEnvInt(envPort, 7878),
		DiagnosticsAddr: getEnv(envDiagnosticsAddr, ":8081"),
		NATSURL:         os.Getenv(envNATSURL),
		Journal: Journal{
			Strategy: getEnv(envJournalStrategy, "async"),
			Size:     getEnvInt(envJournalSize, 0),
		},
		Replicas: parseReplicas(os.Getenv(envReplicas)),
	}
	cfg.IP = cfg.Host
	cfg.ListenAddr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	if vaultAddr := os.Getenv(envVaultAddr); vaultAddr != "" {
		if err := overlayVaultSecrets(&cfg, vaultAddr, logger); err != nil {
			return cfg, fmt.Errorf("vault secret overlay: %w", err)
		}
	}

	logger.Info("node config loaded",
		zap.String("node_type", string(cfg.NodeType)),
		zap.String("name", cfg.Name),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("journal_strategy", cfg.Journal.Strategy),
		zap.Int("journal_size", cfg.Journal.Size),
		zap.Int("replica_count", len(cfg.Replicas)),
	)

	return cfg, nil
}

// ReplicaMap returns the configured replicas as a name→addr map, the
// shape internal/replica.NewRegistry consumes.
func (c NodeConfig) ReplicaMap() map[string]string {
	out := make(map[string]string, len(c.Replicas))
	for _, r := range c.Replicas {
		out[r.Name] = r.Addr
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// parseReplicas reads a comma-separated "name=host:port" list, the
// informal shape this codebase's services use for small env-driven
// peer lists. Malformed entries are skipped.
func parseReplicas(raw string) []ReplicaConfig {
	if raw == "" {
		return nil
	}
	var out []ReplicaConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out = append(out, ReplicaConfig{Name: parts[0], Addr: parts[1]})
	}
	return out
}

func overlayVaultSecrets(cfg *NodeConfig, vaultAddr string, logger *zap.Logger) error {
	vaultCfg := vaultapi.DefaultConfig()
	vaultCfg.Address = vaultAddr

	client, err := vaultapi.NewClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("vault client initialization failed: %w", err)
	}
	if token := os.Getenv(envVaultToken); token != "" {
		client.SetToken(token)
	}

	secretPath := getEnv(envVaultSecretPath, fmt.Sprintf("secret/data/guaradict/%s", cfg.Name))

	secret, err := client.Logical().Read(secretPath)
	if err != nil {
		return fmt.Errorf("failed to read secret at %s: %w", secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		logger.Warn("no Vault secret found, continuing with env-only config", zap.String("path", secretPath))
		return nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		logger.Warn("unexpected Vault secret shape, continuing with env-only config", zap.String("path", secretPath))
		return nil
	}

	if natsURL, ok := data["NATS_URL"].(string); ok && natsURL != "" {
		cfg.NATSURL = natsURL
	}

	logger.Info("overlaid secrets from Vault", zap.String("path", secretPath))
	return nil
}
