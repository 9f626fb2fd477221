package certvalidator

import (
	"crypto/x509"
	"fmt"
	"time"
)

// DefaultMaxChainLength bounds the number of certificates build produces,
// leaf included.
const DefaultMaxChainLength = 10

// ChainError is returned by BuildChain when no usable chain can be
// assembled. Partial is preserved for diagnostics even on failure.
type ChainError struct {
	Reason  string
	Partial []*x509.Certificate
}

func (e *ChainError) Error() string {
	return e.Reason
}

// IncompleteChain returns a ChainError for a cursor that ran out of
// candidate issuers before reaching an anchor or a verified self-signed cert.
func IncompleteChain(partial []*x509.Certificate) *ChainError {
	return &ChainError{Reason: "incomplete chain: no issuer found for " + describeCert(partial[len(partial)-1]), Partial: partial}
}

// MaxDepthExceeded returns a ChainError for a chain that grew past limit.
func MaxDepthExceeded(partial []*x509.Certificate, limit int) *ChainError {
	return &ChainError{Reason: fmt.Sprintf("chain exceeds max length %d", limit), Partial: partial}
}

func describeCert(cert *x509.Certificate) string {
	if cert == nil {
		return "<nil>"
	}
	return cert.Subject.String()
}

// isVerifiedSelfSigned reports whether cert's issuer and subject DNs match
// AND its signature verifies under its own public key. Both conjuncts are
// required — DN equality alone is forgeable.
func isVerifiedSelfSigned(cert *x509.Certificate) bool {
	if !namesEqual(cert.Issuer, cert.Subject) {
		return false
	}
	ok, err := verifyCertSignedBy(cert, cert)
	return err == nil && ok
}

// chainKey identifies a certificate by (subject_dn, serial) for cycle
// detection; serial alone is not sufficient.
func chainKey(cert *x509.Certificate) string {
	serial := ""
	if cert.SerialNumber != nil {
		serial = cert.SerialNumber.String()
	}
	return cert.Subject.String() + "|" + serial
}

// BuildChain arranges leaf plus loose candidates into a chain terminating at
// one of anchors, or at a certificate that is both self-signed and
// signature-verified against itself. now is used to break ties on remaining
// validity; it does not affect temporal acceptance, which is the chain
// validator's job.
func BuildChain(leaf *x509.Certificate, candidates, anchors []*x509.Certificate, maxLen int, now time.Time) ([]*x509.Certificate, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxChainLength
	}

	chain := []*x509.Certificate{leaf}
	seen := map[string]bool{chainKey(leaf): true}
	cursor := leaf

	isAnchor := func(cert *x509.Certificate) bool {
		for _, a := range anchors {
			if CompareCertificates(a, cert) {
				return true
			}
		}
		return false
	}

	for {
		if isVerifiedSelfSigned(cursor) || isAnchor(cursor) {
			return chain, nil
		}
		if len(chain) >= maxLen {
			return nil, MaxDepthExceeded(chain, maxLen)
		}

		pool := make([]*x509.Certificate, 0, len(candidates)+len(anchors))
		pool = append(pool, candidates...)
		pool = append(pool, anchors...)

		var best *x509.Certificate
		bestIsAnchor := false
		for _, cand := range pool {
			if seen[chainKey(cand)] {
				continue
			}
			if !namesEqual(cand.Subject, cursor.Issuer) {
				continue
			}
			candIsAnchor := isAnchor(cand)
			if best == nil {
				best, bestIsAnchor = cand, candIsAnchor
				continue
			}
			if better(cand, candIsAnchor, best, bestIsAnchor, now) {
				best, bestIsAnchor = cand, candIsAnchor
			}
		}

		if best == nil {
			return nil, IncompleteChain(chain)
		}

		chain = append(chain, best)
		seen[chainKey(best)] = true
		cursor = best
	}
}

// better implements the deterministic tie-break: (a) anchors over
// intermediates, (b) longer remaining validity, (c) lexicographic serial.
func better(cand *x509.Certificate, candIsAnchor bool, incumbent *x509.Certificate, incumbentIsAnchor bool, now time.Time) bool {
	if candIsAnchor != incumbentIsAnchor {
		return candIsAnchor
	}
	candRemaining := cand.NotAfter.Sub(now)
	incumbentRemaining := incumbent.NotAfter.Sub(now)
	if candRemaining != incumbentRemaining {
		return candRemaining > incumbentRemaining
	}
	return cand.SerialNumber.String() < incumbent.SerialNumber.String()
}
