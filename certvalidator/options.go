package certvalidator

import (
	"crypto/x509"
	"time"
)

// ValidationOptions controls which checks Validate runs and what the leaf
// certificate is expected to look like. The zero value is not useful; start
// from DefaultValidationOptions and override.
type ValidationOptions struct {
	// ValidateChain runs path validation across the assembled chain.
	ValidateChain bool

	// ValidateKeyUsage checks the leaf's KeyUsage bits against
	// ExpectedKeyUsage when the latter is non-zero.
	ValidateKeyUsage bool

	// ValidateExtendedKeyUsage checks the leaf's ExtKeyUsage values against
	// ExpectedEKU when the latter is non-empty.
	ValidateExtendedKeyUsage bool

	// RequireCompleteChain requires the built chain to terminate at a
	// configured trust anchor; a self-signed root that is not an anchor is
	// insufficient.
	RequireCompleteChain bool

	// AllowSelfSigned permits a self-signed leaf with no issuer to validate
	// on its own, without chaining to an anchor.
	AllowSelfSigned bool

	// ExpectedKeyUsage is the KeyUsage bitset the leaf must carry.
	ExpectedKeyUsage x509.KeyUsage

	// ExpectedEKU lists ExtKeyUsage values the leaf must carry.
	ExpectedEKU []x509.ExtKeyUsage

	// CheckRevocation gates the revocation engine entirely.
	CheckRevocation bool

	// ValidateSAN enforces hostname matching when ExpectedHostname is set.
	ValidateSAN bool

	// ExpectedHostname, when non-empty, must appear in the leaf's SAN list,
	// falling back to the subject CN only when no DNS SANs are present.
	ExpectedHostname string

	// ExpectedPolicies lists certificate policy OIDs (dotted form) the chain
	// must assert. The anyPolicy OID on a certificate satisfies every
	// expected policy.
	ExpectedPolicies []string

	// RevocationPolicy selects the OCSP/CRL orchestration strategy.
	RevocationPolicy RevocationPolicy

	// MaxChainLength caps the number of certificates in a chain, leaf
	// included.
	MaxChainLength int

	// ValidationTime is the instant validity is evaluated at. Zero means
	// the current time.
	ValidationTime time.Time
}

// DefaultValidationOptions returns the documented defaults: chain, key usage,
// EKU, and SAN validation on; revocation off; ocsp-preferred when revocation
// is enabled; depth capped at DefaultMaxChainLength.
func DefaultValidationOptions() *ValidationOptions {
	return &ValidationOptions{
		ValidateChain:            true,
		ValidateKeyUsage:         true,
		ValidateExtendedKeyUsage: true,
		RequireCompleteChain:     true,
		AllowSelfSigned:          false,
		CheckRevocation:          false,
		ValidateSAN:              true,
		RevocationPolicy:         RevocationOcspPreferred,
		MaxChainLength:           DefaultMaxChainLength,
	}
}

// ValidationContext owns the mutable state shared across Validate calls: the
// trust anchors, the revocation checker and, through it, the CRL cache and
// OCSP response cache. One context may serve many concurrent validations;
// all shared caches serialize internally.
type ValidationContext struct {
	// Anchors are the trust anchors chains must terminate at.
	Anchors []*x509.Certificate

	// Revocation orchestrates OCSP and CRL checks. Nil disables revocation
	// regardless of options.
	Revocation *RevocationChecker

	now func() time.Time
}

// NewValidationContext builds a context over the given anchors. fetcher may
// be nil when revocation checking will never be enabled.
func NewValidationContext(anchors []*x509.Certificate, fetcher RevocationFetcher, policy RevocationPolicy) *ValidationContext {
	vc := &ValidationContext{
		Anchors: anchors,
		now:     time.Now,
	}
	if fetcher != nil {
		vc.Revocation = NewRevocationChecker(policy, fetcher)
	}
	return vc
}
