// Package config loads YAML configuration for the certificate validation
// engine: trust anchors, revocation policy, and validation options.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError   = errors.New("configuration error")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrUnexpectedField      = errors.New("unexpected field in configuration")
	ErrInvalidOID           = errors.New("invalid OID")
	ErrInvalidConfigType    = errors.New("configuration must be a dictionary")
)

// OIDRegex matches OID strings like "1.2.3.4"
var OIDRegex = regexp.MustCompile(`^\d+(\.\d+)+$`)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// RevocationOptionsConfig carries revocation settings supplied from YAML.
// CheckRevocation and Policy correspond to the ValidationOptions fields of
// the same names; the cache, nonce and timeout fields are parsed but not
// read anywhere in this module.
type RevocationOptionsConfig struct {
	// CheckRevocation gates the revocation engine entirely.
	CheckRevocation bool `yaml:"check-revocation" json:"check_revocation"`

	// Policy selects the orchestration strategy (disabled, soft-fail,
	// hard-fail, crl-only, ocsp-only, ocsp-preferred, crl-preferred).
	Policy string `yaml:"policy" json:"policy,omitempty"`

	// CRLCacheSize bounds the number of issuers held in the CRL cache.
	CRLCacheSize int `yaml:"crl-cache-size" json:"crl_cache_size,omitempty"`

	// CRLRefreshThresholdSeconds is how close to next_update a cached CRL
	// must be before the updater refetches it.
	CRLRefreshThresholdSeconds int `yaml:"crl-refresh-threshold-seconds" json:"crl_refresh_threshold_seconds,omitempty"`

	// OCSPUseNonce enables nonce generation/verification on OCSP requests.
	OCSPUseNonce *bool `yaml:"ocsp-use-nonce" json:"ocsp_use_nonce,omitempty"`

	// OCSPConnectTimeoutSeconds and OCSPReadTimeoutSeconds bound the OCSP
	// client's network calls.
	OCSPConnectTimeoutSeconds int `yaml:"ocsp-connect-timeout-seconds" json:"ocsp_connect_timeout_seconds,omitempty"`
	OCSPReadTimeoutSeconds    int `yaml:"ocsp-read-timeout-seconds" json:"ocsp_read_timeout_seconds,omitempty"`

	// CRLFetchTimeoutSeconds bounds a single CRL fetch.
	CRLFetchTimeoutSeconds int `yaml:"crl-fetch-timeout-seconds" json:"crl_fetch_timeout_seconds,omitempty"`
}

// ValidationConfig is the top-level YAML shape consumed by validation tooling.
// It maps onto ValidationOptions (see the certvalidator package) plus the
// trust anchors needed to build a certvalidator.ValidationContext.
type ValidationConfig struct {
	// TrustAnchors contains paths to trust anchor certificate files (PEM or DER).
	TrustAnchors []string `yaml:"trust-anchors" json:"trust_anchors,omitempty"`

	// OtherCerts contains paths to loose intermediate certificate files
	// that may be used to complete a chain.
	OtherCerts []string `yaml:"other-certs" json:"other_certs,omitempty"`

	// ValidateChain toggles RFC-5280-style path validation.
	ValidateChain *bool `yaml:"validate-chain" json:"validate_chain,omitempty"`

	// AllowSelfSigned permits a self-signed leaf with no issuer to validate.
	AllowSelfSigned bool `yaml:"allow-self-signed" json:"allow_self_signed"`

	// RequireCompleteChain requires the builder to terminate at a trust anchor.
	RequireCompleteChain *bool `yaml:"require-complete-chain" json:"require_complete_chain,omitempty"`

	// MaxChainLength caps the certification path depth.
	MaxChainLength int `yaml:"max-chain-length" json:"max_chain_length,omitempty"`

	// ExpectedKeyUsage lists required KeyUsage flag names (see
	// ProcessKeyUsageFlags for accepted spellings).
	ExpectedKeyUsage []string `yaml:"expected-key-usage" json:"expected_key_usage,omitempty"`

	// ExpectedEKU lists required ExtKeyUsage flag names (see
	// ProcessExtKeyUsageFlags for accepted spellings).
	ExpectedEKU []string `yaml:"expected-eku" json:"expected_eku,omitempty"`

	// ExpectedHostname, when set, is matched against the leaf's SAN list
	// (falling back to CN only when no SAN is present), per RFC 6125.
	ExpectedHostname string `yaml:"expected-hostname" json:"expected_hostname,omitempty"`

	// ExpectedPolicies lists required certificate policy OIDs.
	ExpectedPolicies []string `yaml:"expected-policies" json:"expected_policies,omitempty"`

	// Revocation configures the revocation engine.
	Revocation *RevocationOptionsConfig `yaml:"revocation" json:"revocation,omitempty"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// AppConfig contains the complete application configuration consumed by the
// CLI and any other long-running host of the engine.
type AppConfig struct {
	// Validation contains the certificate validation configuration.
	Validation *ValidationConfig `yaml:"validation" json:"validation,omitempty"`

	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging" json:"logging,omitempty"`
}

// LoadConfig loads a ValidationConfig from a YAML file.
func LoadConfig(filename string) (*ValidationConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a ValidationConfig from YAML data.
func ParseConfig(data []byte) (*ValidationConfig, error) {
	var config ValidationConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// LoadConfigFromMap loads a ValidationConfig from a generic map, e.g. parsed
// from JSON or assembled programmatically.
func LoadConfigFromMap(data map[string]any) (*ValidationConfig, error) {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config map: %w", err)
	}
	return ParseConfig(yamlData)
}

// LoadAppConfig loads the complete application configuration from a file.
func LoadAppConfig(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Logging == nil {
		config.Logging = &LoggingConfig{}
	}
	config.Logging.SetDefaults()

	return &config, nil
}

// CheckConfigKeys checks if all provided keys are valid for a given configuration type.
func CheckConfigKeys(configName string, expectedKeys, suppliedKeys []string) error {
	expectedSet := make(map[string]bool)
	for _, k := range expectedKeys {
		expectedSet[normalizeKey(k)] = true
	}

	var unexpected []string
	for _, k := range suppliedKeys {
		normalized := normalizeKey(k)
		if !expectedSet[normalized] {
			unexpected = append(unexpected, k)
		}
	}

	if len(unexpected) > 0 {
		keyWord := "key"
		if len(unexpected) > 1 {
			keyWord = "keys"
		}
		return fmt.Errorf("%w: unexpected %s in configuration for %s: %s",
			ErrUnexpectedField, keyWord, configName, strings.Join(unexpected, ", "))
	}

	return nil
}

// normalizeKey normalizes a configuration key (underscores to dashes).
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// ProcessOID rejects an empty OID string and returns any other string
// unchanged.
func ProcessOID(oidString string) (string, error) {
	if oidString == "" {
		return "", NewConfigError("oid", "OID string is empty")
	}

	if OIDRegex.MatchString(oidString) {
		return oidString, nil
	}

	// Otherwise the string is returned as given; named aliases such as
	// "anyPolicy" are not resolved to an OID.
	return oidString, nil
}

// ProcessOIDs applies ProcessOID to each string in a list.
func ProcessOIDs(oidStrings []string) ([]string, error) {
	result := make([]string, 0, len(oidStrings))
	for _, oid := range oidStrings {
		processed, err := ProcessOID(oid)
		if err != nil {
			return nil, err
		}
		result = append(result, processed)
	}
	return result, nil
}

// KeyUsageFlags are the X.509 KeyUsage flag names accepted in configuration,
// matching crypto/x509 KeyUsage constants under both kebab-case and
// camelCase spellings.
var KeyUsageFlags = map[string]bool{
	"digital-signature":  true,
	"digitalSignature":   true,
	"content-commitment": true,
	"contentCommitment":  true,
	"non-repudiation":    true,
	"nonRepudiation":     true,
	"key-encipherment":   true,
	"keyEncipherment":    true,
	"data-encipherment":  true,
	"dataEncipherment":   true,
	"key-agreement":      true,
	"keyAgreement":       true,
	"key-cert-sign":      true,
	"keyCertSign":        true,
	"crl-sign":           true,
	"cRLSign":            true,
	"encipher-only":      true,
	"encipherOnly":       true,
	"decipher-only":      true,
	"decipherOnly":       true,
}

// ExtKeyUsageFlags are the ExtendedKeyUsage flag names accepted in configuration.
var ExtKeyUsageFlags = map[string]bool{
	"any":               true,
	"server-auth":       true,
	"serverAuth":        true,
	"client-auth":       true,
	"clientAuth":        true,
	"code-signing":      true,
	"codeSigning":       true,
	"email-protection":  true,
	"emailProtection":   true,
	"ipsec-end-system":  true,
	"ipsecEndSystem":    true,
	"ipsec-tunnel":      true,
	"ipsecTunnel":       true,
	"ipsec-user":        true,
	"ipsecUser":         true,
	"time-stamping":     true,
	"timeStamping":      true,
	"ocsp-signing":      true,
	"OCSPSigning":       true,
}

// EnsureStrings ensures the input is a slice of strings.
// It accepts either a single string or a slice of strings.
func EnsureStrings(value any, paramName string) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		result := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, NewConfigError(paramName,
					fmt.Sprintf("item %d is not a string (got %T)", i, item))
			}
			result = append(result, s)
		}
		return result, nil
	default:
		return nil, NewConfigError(paramName,
			fmt.Sprintf("must be specified as a list of strings or a string, got %T", value))
	}
}

// ProcessBitStringFlags validates a list of flag strings against a set of valid flag names.
// Used for configuration values like expected-key-usage or expected-eku.
func ProcessBitStringFlags(validFlags map[string]bool, input any, paramName, flagTypeName string) ([]string, error) {
	strs, err := EnsureStrings(input, paramName)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(strs))
	for _, flagString := range strs {
		if flagString == "" {
			return nil, NewConfigError(paramName, "flag identifier cannot be empty")
		}

		if !validFlags[flagString] {
			return nil, NewConfigError(paramName,
				fmt.Sprintf("'%s' is not a valid %s flag name", flagString, flagTypeName))
		}

		result = append(result, flagString)
	}

	return result, nil
}

// ProcessKeyUsageFlags validates and processes KeyUsage flag strings.
func ProcessKeyUsageFlags(input any, paramName string) ([]string, error) {
	return ProcessBitStringFlags(KeyUsageFlags, input, paramName, "KeyUsage")
}

// ProcessExtKeyUsageFlags validates and processes ExtKeyUsage flag strings.
func ProcessExtKeyUsageFlags(input any, paramName string) ([]string, error) {
	return ProcessBitStringFlags(ExtKeyUsageFlags, input, paramName, "ExtKeyUsage")
}

// NormalizeKeyUsageFlag normalizes a KeyUsage flag name to its canonical kebab-case form.
func NormalizeKeyUsageFlag(flag string) string {
	normalizations := map[string]string{
		"digitalSignature":  "digital-signature",
		"contentCommitment": "content-commitment",
		"nonRepudiation":    "non-repudiation",
		"keyEncipherment":   "key-encipherment",
		"dataEncipherment":  "data-encipherment",
		"keyAgreement":      "key-agreement",
		"keyCertSign":       "key-cert-sign",
		"cRLSign":           "crl-sign",
		"encipherOnly":      "encipher-only",
		"decipherOnly":      "decipher-only",
	}
	if normalized, ok := normalizations[flag]; ok {
		return normalized
	}
	return flag
}

// NormalizeExtKeyUsageFlag normalizes an ExtKeyUsage flag name to its canonical kebab-case form.
func NormalizeExtKeyUsageFlag(flag string) string {
	normalizations := map[string]string{
		"serverAuth":      "server-auth",
		"clientAuth":      "client-auth",
		"codeSigning":     "code-signing",
		"emailProtection": "email-protection",
		"ipsecEndSystem":  "ipsec-end-system",
		"ipsecTunnel":     "ipsec-tunnel",
		"ipsecUser":       "ipsec-user",
		"timeStamping":    "time-stamping",
		"OCSPSigning":     "ocsp-signing",
	}
	if normalized, ok := normalizations[flag]; ok {
		return normalized
	}
	return flag
}
