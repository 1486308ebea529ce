package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
)

// Identificador por defecto de las preguntas sí/no del optimistic oracle.
const DefaultPriceIdentifier = "YES_OR_NO_QUERY"

// Config es la configuración completa de ctfdesk.
type Config struct {
	Network NetworkConfig  `yaml:"network"`
	Wallet  WalletConfig   `yaml:"wallet"`
	Markets []MarketConfig `yaml:"markets"`
	Polling PollingConfig  `yaml:"polling"`
	Storage StorageConfig  `yaml:"storage"`
	Log     LogConfig      `yaml:"log"`
}

// NetworkConfig describe la red y sus contratos fijos.
type NetworkConfig struct {
	ChainID                 int64   `yaml:"chain_id"`
	RPCURL                  string  `yaml:"rpc_url"`
	ConditionalTokens       string  `yaml:"conditional_tokens"`
	CollateralToken         string  `yaml:"collateral_token"`
	OracleAddress           string  `yaml:"oracle_address"`
	AdapterAddress          string  `yaml:"adapter_address"`
	OptimisticOracleAddress string  `yaml:"optimistic_oracle_address"`
	RewardTokenAddress      string  `yaml:"reward_token_address"`
	StartBlock              uint64  `yaml:"start_block"`      // primer bloque a escanear; se usa tal cual
	PriceIdentifier         string  `yaml:"price_identifier"` // texto ASCII (≤32 bytes) o hex de 32 bytes
	RPCRatePerSec           float64 `yaml:"rpc_rate_per_sec"` // 0 = sin límite
	LogChunkSize            uint64  `yaml:"log_chunk_size"`   // bloques por eth_getLogs
}

// WalletConfig: con private_key se firma; sin ella, account es solo lectura.
type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
	Account    string `yaml:"account"`
}

// MarketConfig es un mercado configurado.
type MarketConfig struct {
	Title        string   `yaml:"title"`
	Category     string   `yaml:"category"`
	Description  string   `yaml:"description"`
	OutcomeCount int      `yaml:"outcome_count"`
	Outcomes     []string `yaml:"outcomes"`
	ConditionID  string   `yaml:"condition_id"` // opcional; si falta se deriva de oracle + question_id
	QuestionID   string   `yaml:"question_id"`
	AMMAddress   string   `yaml:"amm_address"`
}

// PollingConfig controla los intervalos de refresco.
type PollingConfig struct {
	MarketIntervalSeconds int `yaml:"market_interval_seconds"`
	OracleIntervalSeconds int `yaml:"oracle_interval_seconds"`
	OracleConcurrency     int `yaml:"oracle_concurrency"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse interpreta un documento YAML y aplica overrides de entorno y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MarketInterval devuelve el intervalo de refresco de mercados.
func (c *Config) MarketInterval() time.Duration {
	return time.Duration(c.Polling.MarketIntervalSeconds) * time.Second
}

// OracleInterval devuelve el intervalo de refresco del oracle.
func (c *Config) OracleInterval() time.Duration {
	return time.Duration(c.Polling.OracleIntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTFDESK_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("CTFDESK_ACCOUNT"); v != "" {
		cfg.Wallet.Account = v
	}
	if v := os.Getenv("CTFDESK_RPC_URL"); v != "" {
		cfg.Network.RPCURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Network.PriceIdentifier == "" {
		cfg.Network.PriceIdentifier = DefaultPriceIdentifier
	}
	if cfg.Polling.MarketIntervalSeconds <= 0 {
		cfg.Polling.MarketIntervalSeconds = 15
	}
	if cfg.Polling.OracleIntervalSeconds <= 0 {
		cfg.Polling.OracleIntervalSeconds = 30
	}
	if cfg.Polling.OracleConcurrency <= 0 {
		cfg.Polling.OracleConcurrency = 4
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "ctfdesk.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	for i := range cfg.Markets {
		// Sin outcome_count explícito, se toma de la lista de outcomes; binario si no hay.
		if cfg.Markets[i].OutcomeCount == 0 {
			cfg.Markets[i].OutcomeCount = max(len(cfg.Markets[i].Outcomes), 2)
		}
	}
}

// Validate revisa direcciones, ids y límites. Devuelve todos los problemas juntos.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, required bool) {
		if value == "" {
			if required {
				errs = append(errs, fmt.Errorf("%s is required", field))
			}
			return
		}
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", field, value))
		}
	}

	if c.Network.ChainID <= 0 {
		errs = append(errs, errors.New("network.chain_id must be positive"))
	}
	if c.Network.RPCURL == "" {
		errs = append(errs, errors.New("network.rpc_url is required"))
	}
	check("network.conditional_tokens", c.Network.ConditionalTokens, true)
	check("network.collateral_token", c.Network.CollateralToken, true)
	check("network.oracle_address", c.Network.OracleAddress, true)
	check("network.adapter_address", c.Network.AdapterAddress, true)
	check("network.optimistic_oracle_address", c.Network.OptimisticOracleAddress, true)
	check("network.reward_token_address", c.Network.RewardTokenAddress, true)
	check("wallet.account", c.Wallet.Account, false)
	if _, err := parseIdentifier(c.Network.PriceIdentifier); err != nil {
		errs = append(errs, fmt.Errorf("network.price_identifier: %w", err))
	}

	for i, m := range c.Markets {
		prefix := fmt.Sprintf("markets[%d]", i)
		if m.Title == "" {
			errs = append(errs, fmt.Errorf("%s.title is required", prefix))
		}
		if m.OutcomeCount < 2 || m.OutcomeCount > domain.MaxOutcomes {
			errs = append(errs, fmt.Errorf("%s.outcome_count %d out of range [2, %d]", prefix, m.OutcomeCount, domain.MaxOutcomes))
		}
		if len(m.Outcomes) > 0 && len(m.Outcomes) != m.OutcomeCount {
			errs = append(errs, fmt.Errorf("%s: %d outcome titles for %d outcomes", prefix, len(m.Outcomes), m.OutcomeCount))
		}
		check(prefix+".amm_address", m.AMMAddress, true)
		if m.ConditionID == "" && m.QuestionID == "" {
			errs = append(errs, fmt.Errorf("%s: condition_id or question_id is required", prefix))
		}
		if m.ConditionID != "" && !isHash(m.ConditionID) {
			errs = append(errs, fmt.Errorf("%s.condition_id: invalid 32-byte hex %q", prefix, m.ConditionID))
		}
		if m.QuestionID != "" && !isHash(m.QuestionID) {
			errs = append(errs, fmt.Errorf("%s.question_id: invalid 32-byte hex %q", prefix, m.QuestionID))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	return nil
}

// Identifier devuelve el price identifier como bytes32.
func (n NetworkConfig) Identifier() [32]byte {
	id, _ := parseIdentifier(n.PriceIdentifier)
	return id
}

// Descriptors convierte los mercados configurados al modelo de dominio.
func (c *Config) Descriptors() []domain.MarketDescriptor {
	out := make([]domain.MarketDescriptor, 0, len(c.Markets))
	for _, m := range c.Markets {
		d := domain.MarketDescriptor{
			Title:        m.Title,
			Category:     m.Category,
			Description:  m.Description,
			OutcomeCount: m.OutcomeCount,
			Outcomes:     m.Outcomes,
			AMM:          common.HexToAddress(m.AMMAddress),
		}
		if m.ConditionID != "" {
			d.ConditionID = common.HexToHash(m.ConditionID)
		}
		if m.QuestionID != "" {
			d.QuestionID = common.HexToHash(m.QuestionID)
		}
		out = append(out, d)
	}
	return out
}

// parseIdentifier acepta hex de 32 bytes ("0x...") o texto ASCII rellenado con ceros.
func parseIdentifier(s string) ([32]byte, error) {
	var id [32]byte
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return id, fmt.Errorf("invalid hex %q: %w", s, err)
		}
		if len(b) != 32 {
			return id, fmt.Errorf("hex identifier must be 32 bytes, got %d", len(b))
		}
		copy(id[:], b)
		return id, nil
	}
	if len(s) > 32 {
		return id, fmt.Errorf("text identifier longer than 32 bytes: %q", s)
	}
	copy(id[:], s)
	return id, nil
}

func isHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == 32
}
