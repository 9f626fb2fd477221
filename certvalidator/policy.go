package certvalidator

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"
)

// RevocationPolicy selects how the revocation checker orchestrates OCSP and
// CRL for a (cert, issuer) pair.
type RevocationPolicy int

const (
	// RevocationDisabled skips revocation checking entirely.
	RevocationDisabled RevocationPolicy = iota
	// RevocationSoftFail downgrades inconclusive results from both methods
	// to ok, with warnings.
	RevocationSoftFail
	// RevocationHardFail treats both methods being inconclusive as revoked.
	RevocationHardFail
	// RevocationCrlOnly requires a CRL distribution point and uses only CRL.
	RevocationCrlOnly
	// RevocationOcspOnly uses only OCSP.
	RevocationOcspOnly
	// RevocationOcspPreferred tries OCSP first, falling back to CRL when
	// OCSP is inconclusive. This is the default.
	RevocationOcspPreferred
	// RevocationCrlPreferred is symmetric to RevocationOcspPreferred.
	RevocationCrlPreferred
)

func (p RevocationPolicy) String() string {
	switch p {
	case RevocationDisabled:
		return "disabled"
	case RevocationSoftFail:
		return "soft-fail"
	case RevocationHardFail:
		return "hard-fail"
	case RevocationCrlOnly:
		return "crl-only"
	case RevocationOcspOnly:
		return "ocsp-only"
	case RevocationOcspPreferred:
		return "ocsp-preferred"
	case RevocationCrlPreferred:
		return "crl-preferred"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseRevocationPolicy resolves a policy name as produced by
// RevocationPolicy.String. It is the inverse used by configuration loading.
func ParseRevocationPolicy(name string) (RevocationPolicy, error) {
	switch name {
	case "disabled", "":
		return RevocationDisabled, nil
	case "soft-fail":
		return RevocationSoftFail, nil
	case "hard-fail":
		return RevocationHardFail, nil
	case "crl-only":
		return RevocationCrlOnly, nil
	case "ocsp-only":
		return RevocationOcspOnly, nil
	case "ocsp-preferred":
		return RevocationOcspPreferred, nil
	case "crl-preferred":
		return RevocationCrlPreferred, nil
	default:
		return RevocationDisabled, fmt.Errorf("unknown revocation policy %q", name)
	}
}

// MethodAttempt records the outcome of trying a single revocation method.
type MethodAttempt struct {
	Method     string // "ocsp" or "crl"
	Conclusive bool
	Revoked    bool
	Err        error
}

// LastCheckStatus captures which revocation methods were tried for a
// (cert, issuer) pair, whether each was conclusive, and the final verdict
// the policy derived from them.
type LastCheckStatus struct {
	MethodsTried []string
	Attempts     []MethodAttempt
	Result       bool // true = not revoked (or check not required)
}

func (s *LastCheckStatus) record(a MethodAttempt) {
	s.MethodsTried = append(s.MethodsTried, a.Method)
	s.Attempts = append(s.Attempts, a)
}

// RevocationChecker orchestrates OCSP and CRL checking under a configured
// RevocationPolicy, backed by a shared CRL cache and OCSP client,
// both safe for concurrent use across validations.
type RevocationChecker struct {
	Policy           RevocationPolicy
	OCSPClient       *OCSPClient
	CRLCache         *CRLCache
	Fetcher          RevocationFetcher
	RefreshThreshold time.Duration
}

// NewRevocationChecker builds a checker with the default cache sizes and timeouts.
func NewRevocationChecker(policy RevocationPolicy, fetcher RevocationFetcher) *RevocationChecker {
	return &RevocationChecker{
		Policy:           policy,
		OCSPClient:       NewOCSPClient(fetcher),
		CRLCache:         NewCRLCache(DefaultCRLCacheSize),
		Fetcher:          fetcher,
		RefreshThreshold: DefaultCRLRefreshThreshold,
	}
}

func (c *RevocationChecker) tryOCSP(ctx context.Context, cert, issuer *x509.Certificate, result *ValidationResult) MethodAttempt {
	_, conclusive, revoked := c.OCSPClient.Check(ctx, cert, issuer, "", result)
	return MethodAttempt{Method: "ocsp", Conclusive: conclusive, Revoked: revoked}
}

func (c *RevocationChecker) tryCRL(ctx context.Context, cert, issuer *x509.Certificate, now time.Time, result *ValidationResult) MethodAttempt {
	if len(cert.CRLDistributionPoints) == 0 {
		return MethodAttempt{Method: "crl", Conclusive: false, Err: fmt.Errorf("certificate has no CRL distribution points")}
	}
	crl, err := FetchCRLForCert(ctx, cert, issuer, c.CRLCache, c.Fetcher, c.RefreshThreshold, true, result)
	if err != nil || crl == nil {
		return MethodAttempt{Method: "crl", Conclusive: false, Err: err}
	}
	conclusive, revoked := CheckRevocationViaCRL(cert, crl, issuer, now, result)
	return MethodAttempt{Method: "crl", Conclusive: conclusive, Revoked: revoked}
}

// CheckRevocation runs the policy orchestration table for (cert, issuer) and
// integrates the verdict into result.
func (c *RevocationChecker) CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate, now time.Time, result *ValidationResult) *LastCheckStatus {
	status := &LastCheckStatus{Result: true}

	switch c.Policy {
	case RevocationDisabled:
		return status

	case RevocationOcspOnly:
		a := c.tryOCSP(ctx, cert, issuer, result)
		status.record(a)
		if a.Err != nil {
			result.AddError(a.Err.Error())
			status.Result = false
		} else if a.Revoked {
			status.Result = false
		} else if !a.Conclusive {
			result.AddError(fmt.Sprintf("OCSP check for %s was inconclusive", cert.SerialNumber))
			status.Result = false
		}
		return status

	case RevocationCrlOnly:
		a := c.tryCRL(ctx, cert, issuer, now, result)
		status.record(a)
		if a.Err != nil {
			result.AddError(a.Err.Error())
			status.Result = false
		} else if a.Revoked {
			status.Result = false
		} else if !a.Conclusive {
			result.AddError(fmt.Sprintf("CRL check for %s was inconclusive", cert.SerialNumber))
			status.Result = false
		}
		return status

	case RevocationOcspPreferred:
		ocspAttempt := c.tryOCSP(ctx, cert, issuer, result)
		status.record(ocspAttempt)
		if ocspAttempt.Conclusive {
			status.Result = !ocspAttempt.Revoked
			return status
		}
		crlAttempt := c.tryCRL(ctx, cert, issuer, now, result)
		status.record(crlAttempt)
		if crlAttempt.Conclusive {
			status.Result = !crlAttempt.Revoked
			return status
		}
		result.AddWarning(fmt.Sprintf("neither OCSP nor CRL produced a conclusive status for %s", cert.SerialNumber))
		return status

	case RevocationCrlPreferred:
		crlAttempt := c.tryCRL(ctx, cert, issuer, now, result)
		status.record(crlAttempt)
		if crlAttempt.Conclusive {
			status.Result = !crlAttempt.Revoked
			return status
		}
		ocspAttempt := c.tryOCSP(ctx, cert, issuer, result)
		status.record(ocspAttempt)
		if ocspAttempt.Conclusive {
			status.Result = !ocspAttempt.Revoked
			return status
		}
		result.AddWarning(fmt.Sprintf("neither CRL nor OCSP produced a conclusive status for %s", cert.SerialNumber))
		return status

	case RevocationSoftFail:
		ocspAttempt := c.tryOCSP(ctx, cert, issuer, result)
		status.record(ocspAttempt)
		if ocspAttempt.Conclusive {
			status.Result = !ocspAttempt.Revoked
			return status
		}
		result.AddWarning(fmt.Sprintf("OCSP check for %s was inconclusive, falling back to CRL", cert.SerialNumber))
		crlAttempt := c.tryCRL(ctx, cert, issuer, now, result)
		status.record(crlAttempt)
		if crlAttempt.Conclusive {
			status.Result = !crlAttempt.Revoked
			return status
		}
		result.AddWarning(fmt.Sprintf("CRL check for %s was also inconclusive; proceeding without a revocation verdict", cert.SerialNumber))
		status.Result = true
		return status

	case RevocationHardFail:
		ocspAttempt := c.tryOCSP(ctx, cert, issuer, result)
		status.record(ocspAttempt)
		if ocspAttempt.Conclusive {
			status.Result = !ocspAttempt.Revoked
			return status
		}
		crlAttempt := c.tryCRL(ctx, cert, issuer, now, result)
		status.record(crlAttempt)
		if crlAttempt.Conclusive {
			status.Result = !crlAttempt.Revoked
			return status
		}
		result.AddError(fmt.Sprintf("neither OCSP nor CRL produced a conclusive status for %s; treating as revoked under hard-fail policy", cert.SerialNumber))
		status.Result = false
		return status

	default:
		result.AddError(fmt.Sprintf("unknown revocation policy %v", c.Policy))
		status.Result = false
		return status
	}
}
