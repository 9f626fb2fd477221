package certvalidator

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"
)

// recognizedCriticalExtensions is the set of critical extensions the chain
// validator understands. Any other extension marked critical fails
// validation.
var recognizedCriticalExtensions = map[string]bool{
	"2.5.29.19": true, // basic constraints
	"2.5.29.15": true, // key usage
	"2.5.29.37": true, // extended key usage
	"2.5.29.17": true, // subject alternative name
	"2.5.29.32": true, // certificate policies
	"2.5.29.30": true, // name constraints
}

// Validate is the library entry point: it arranges leaf plus intermediates
// into a chain terminating at one of the context's trust anchors, then walks
// the chain enforcing temporal validity, name chaining, signatures, CA
// constraints, critical-extension recognition, leaf usage expectations, and
// revocation status. It never fails by returning an error: every problem is
// recorded in the returned result, and IsValid reflects whether any error
// was recorded.
func (vc *ValidationContext) Validate(ctx context.Context, leaf *x509.Certificate, intermediates []*x509.Certificate, opts *ValidationOptions) *ValidationResult {
	result := NewValidationResult()
	if leaf == nil {
		result.AddError("no certificate to validate")
		return result
	}
	if opts == nil {
		opts = DefaultValidationOptions()
	}

	now := opts.ValidationTime
	if now.IsZero() {
		if vc.now != nil {
			now = vc.now()
		} else {
			now = time.Now()
		}
	}

	chain := vc.assembleChain(leaf, intermediates, opts, now, result)
	if chain == nil {
		return result
	}

	if opts.ValidateChain {
		vc.validateChain(ctx, chain, opts, now, result)
	}

	if result.IsValid() {
		result.AddSuccess(fmt.Sprintf("certificate %q validated against a chain of %d certificate(s)",
			leaf.Subject.CommonName, len(chain)))
	}
	return result
}

// assembleChain builds the chain and applies the trust-termination rules.
// It returns nil after recording an error when no acceptable chain exists.
func (vc *ValidationContext) assembleChain(leaf *x509.Certificate, intermediates []*x509.Certificate, opts *ValidationOptions, now time.Time, result *ValidationResult) []*x509.Certificate {
	if opts.AllowSelfSigned && isVerifiedSelfSigned(leaf) && !vc.isAnchor(leaf) {
		result.AddInfo(fmt.Sprintf("accepting self-signed certificate %q without an issuer", leaf.Subject.CommonName))
		return []*x509.Certificate{leaf}
	}

	chain, err := BuildChain(leaf, intermediates, vc.Anchors, opts.MaxChainLength, now)
	if err != nil {
		if len(vc.Anchors) == 0 {
			result.AddError(fmt.Sprintf("untrusted root: no trust anchors configured (%v)", err))
		} else {
			result.AddError(err.Error())
		}
		return nil
	}

	top := chain[len(chain)-1]
	if opts.RequireCompleteChain && !vc.isAnchor(top) {
		result.AddError(fmt.Sprintf("untrusted root: chain terminates at %q, which is not a configured trust anchor",
			top.Subject.CommonName))
		return nil
	}
	return chain
}

func (vc *ValidationContext) isAnchor(cert *x509.Certificate) bool {
	for _, a := range vc.Anchors {
		if CompareCertificates(a, cert) {
			return true
		}
	}
	return false
}

// validateChain walks chain from leaf to root, recording every violation.
// It deliberately re-checks facts the builder already established, such as
// issuer-to-subject name chaining: the validator does not assume its input
// came from BuildChain.
func (vc *ValidationContext) validateChain(ctx context.Context, chain []*x509.Certificate, opts *ValidationOptions, now time.Time, result *ValidationResult) {
	checker := vc.revocationCheckerFor(opts)
	if opts.CheckRevocation && checker == nil && opts.RevocationPolicy != RevocationDisabled {
		result.AddWarning("revocation checking requested but no fetcher is configured; skipping")
	}

	for i, cert := range chain {
		label := describeChainPosition(i, len(chain))

		checkTemporal(cert, label, now, result)

		if i < len(chain)-1 {
			issuer := chain[i+1]
			if !namesEqual(cert.Issuer, issuer.Subject) {
				result.AddError(fmt.Sprintf("%s %q: issuer %q does not match next certificate subject %q",
					label, cert.Subject.CommonName, cert.Issuer, issuer.Subject))
			}
			checkLinkSignature(cert, issuer, label, result)
		} else {
			checkTopSignature(cert, vc.isAnchor(cert), label, result)
		}

		if i > 0 {
			checkCAConstraints(cert, chain, i, label, result)
			if hasNameConstraints(cert) {
				for j := 0; j < i; j++ {
					checkNameConstraints(cert, chain[j], describeChainPosition(j, len(chain)), result)
				}
			}
		}

		checkCriticalExtensions(cert, label, result)

		if i == 0 {
			validateLeafExpectations(cert, opts, result)
		}

		if opts.CheckRevocation && checker != nil && i < len(chain)-1 {
			checker.CheckRevocation(ctx, cert, chain[i+1], now, result)
		}
	}

	if len(opts.ExpectedPolicies) > 0 {
		evaluateChainPolicies(chain, opts.ExpectedPolicies, result)
	}
}

// evaluateChainPolicies walks the chain top-down through a valid-policy
// tree and requires at least one expected policy to survive to the leaf.
// The topmost certificate is the trust anchor and does not participate,
// except when the chain is a single self-signed certificate.
func evaluateChainPolicies(chain []*x509.Certificate, expected []string, result *ValidationResult) {
	tree := newPolicyTree()
	if len(chain) == 1 {
		tree.processCertificate(chain[0])
	} else {
		for i := len(chain) - 2; i >= 0; i-- {
			tree.processCertificate(chain[i])
		}
	}
	if !tree.satisfies(expected) {
		result.AddError(fmt.Sprintf("no expected certificate policy %v is valid for this chain (valid: %v)",
			expected, tree.validPolicies()))
	}
}

// revocationCheckerFor returns the context's checker adjusted to the
// options' policy. The copy shares the underlying CRL cache and OCSP client,
// so cached artifacts survive policy changes between calls.
func (vc *ValidationContext) revocationCheckerFor(opts *ValidationOptions) *RevocationChecker {
	if !opts.CheckRevocation || vc.Revocation == nil {
		return nil
	}
	if vc.Revocation.Policy == opts.RevocationPolicy {
		return vc.Revocation
	}
	adjusted := &RevocationChecker{
		Policy:           opts.RevocationPolicy,
		OCSPClient:       vc.Revocation.OCSPClient,
		CRLCache:         vc.Revocation.CRLCache,
		Fetcher:          vc.Revocation.Fetcher,
		RefreshThreshold: vc.Revocation.RefreshThreshold,
	}
	return adjusted
}

func describeChainPosition(i, total int) string {
	switch {
	case i == 0:
		return "leaf certificate"
	case i == total-1:
		return "root certificate"
	default:
		return fmt.Sprintf("intermediate certificate %d", i)
	}
}

// checkTemporal enforces notBefore <= now <= notAfter, inclusive on both
// ends.
func checkTemporal(cert *x509.Certificate, label string, now time.Time, result *ValidationResult) {
	if now.Before(cert.NotBefore) {
		result.AddError(fmt.Sprintf("%s %q is not yet valid: notBefore is %s",
			label, cert.Subject.CommonName, cert.NotBefore.Format(time.RFC3339)))
	}
	if now.After(cert.NotAfter) {
		result.AddError(fmt.Sprintf("%s %q expired at %s",
			label, cert.Subject.CommonName, cert.NotAfter.Format(time.RFC3339)))
	}
}

func checkLinkSignature(cert, issuer *x509.Certificate, label string, result *ValidationResult) {
	ok, err := verifyCertSignedBy(cert, issuer)
	if err != nil {
		result.AddError(fmt.Sprintf("%s %q: signature check failed: %v", label, cert.Subject.CommonName, err))
		return
	}
	if !ok {
		result.AddError(fmt.Sprintf("%s %q: signature by %q is invalid",
			label, cert.Subject.CommonName, issuer.Subject.CommonName))
	}
}

// checkTopSignature handles the last certificate in the chain: a self-signed
// certificate must verify under its own key; a trust anchor that is not
// self-signed is accepted as-is, since nothing above it is available to
// verify against.
func checkTopSignature(cert *x509.Certificate, anchored bool, label string, result *ValidationResult) {
	if namesEqual(cert.Issuer, cert.Subject) {
		ok, err := verifyCertSignedBy(cert, cert)
		if err != nil {
			result.AddError(fmt.Sprintf("%s %q: self-signature check failed: %v", label, cert.Subject.CommonName, err))
		} else if !ok {
			result.AddError(fmt.Sprintf("%s %q: self-signature is invalid", label, cert.Subject.CommonName))
		}
		return
	}
	if !anchored {
		result.AddError(fmt.Sprintf("%s %q is neither self-signed nor a trust anchor", label, cert.Subject.CommonName))
	}
}

// checkCAConstraints enforces the issuing-certificate rules for chain[i]:
// basic constraints CA, keyCertSign when key usage is present, and the path
// length constraint counted over non-self-issued certificates between this
// certificate and the leaf.
func checkCAConstraints(cert *x509.Certificate, chain []*x509.Certificate, i int, label string, result *ValidationResult) {
	if !cert.IsCA {
		result.AddError(fmt.Sprintf("%s %q is not a CA certificate", label, cert.Subject.CommonName))
	}
	if cert.KeyUsage != 0 && cert.KeyUsage&x509.KeyUsageCertSign == 0 {
		result.AddError(fmt.Sprintf("%s %q lacks the keyCertSign key usage", label, cert.Subject.CommonName))
	}
	if cert.MaxPathLen > 0 || (cert.MaxPathLen == 0 && cert.MaxPathLenZero) {
		below := 0
		for j := 1; j < i; j++ {
			if !IsSelfIssued(chain[j]) {
				below++
			}
		}
		if below > cert.MaxPathLen {
			result.AddError(fmt.Sprintf("%s %q: path length constraint %d exceeded (%d intermediates below)",
				label, cert.Subject.CommonName, cert.MaxPathLen, below))
		}
	}
}

// checkCriticalExtensions rejects any extension marked critical outside the
// recognized set.
func checkCriticalExtensions(cert *x509.Certificate, label string, result *ValidationResult) {
	for _, ext := range cert.Extensions {
		if !ext.Critical {
			continue
		}
		if !recognizedCriticalExtensions[ext.Id.String()] {
			result.AddError(fmt.Sprintf("%s %q carries unrecognized critical extension %s",
				label, cert.Subject.CommonName, ext.Id))
		}
	}
}

// validateLeafExpectations applies the caller's leaf-only requirements: key
// usage bits, extended key usage values, and hostname.
func validateLeafExpectations(cert *x509.Certificate, opts *ValidationOptions, result *ValidationResult) {
	if opts.ValidateKeyUsage && opts.ExpectedKeyUsage != 0 {
		missing := opts.ExpectedKeyUsage & ^cert.KeyUsage
		if missing != 0 {
			result.AddError(fmt.Sprintf("leaf certificate %q is missing required key usage %s",
				cert.Subject.CommonName, keyUsageNames(missing)))
		} else {
			result.AddSuccess(fmt.Sprintf("leaf certificate %q satisfies required key usage", cert.Subject.CommonName))
		}
	}

	if opts.ValidateExtendedKeyUsage && len(opts.ExpectedEKU) > 0 {
		have := make(map[x509.ExtKeyUsage]bool, len(cert.ExtKeyUsage))
		for _, eku := range cert.ExtKeyUsage {
			have[eku] = true
		}
		anyEKU := have[x509.ExtKeyUsageAny]
		satisfied := true
		for _, want := range opts.ExpectedEKU {
			if !have[want] && !anyEKU {
				result.AddError(fmt.Sprintf("leaf certificate %q is missing required extended key usage %s",
					cert.Subject.CommonName, extKeyUsageName(want)))
				satisfied = false
			}
		}
		if satisfied {
			result.AddSuccess(fmt.Sprintf("leaf certificate %q satisfies required extended key usage", cert.Subject.CommonName))
		}
	}

	if opts.ValidateSAN && opts.ExpectedHostname != "" {
		checkHostname(cert, opts.ExpectedHostname, result)
	}
}

// checkHostname matches hostname against the leaf's subject alternative
// names, falling back to the subject common name only when the certificate
// carries no DNS SANs. IP addresses are matched against IP SANs exactly.
func checkHostname(cert *x509.Certificate, hostname string, result *ValidationResult) {
	if ip := net.ParseIP(hostname); ip != nil {
		for _, san := range cert.IPAddresses {
			if san.Equal(ip) {
				result.AddSuccess(fmt.Sprintf("certificate is valid for IP address %s", hostname))
				return
			}
		}
		result.AddError(fmt.Sprintf("certificate is not valid for IP address %s", hostname))
		return
	}

	patterns := cert.DNSNames
	source := "subject alternative names"
	if len(patterns) == 0 {
		if cert.Subject.CommonName == "" {
			result.AddError(fmt.Sprintf("certificate has no SAN entries or common name to match against %q", hostname))
			return
		}
		patterns = []string{cert.Subject.CommonName}
		source = "subject common name"
	}

	for _, pattern := range patterns {
		if matchHostname(pattern, hostname) {
			result.AddSuccess(fmt.Sprintf("certificate is valid for %q (matched %s entry %q)", hostname, source, pattern))
			return
		}
	}
	result.AddError(fmt.Sprintf("certificate is not valid for %q: no matching entry in %s %v", hostname, source, patterns))
}

// matchHostname implements presented-identifier matching with the single
// permitted wildcard form: "*" as the entire left-most label, matching
// exactly one label.
func matchHostname(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSuffix(pattern, "."))
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if pattern == "" || host == "" {
		return false
	}
	if !strings.HasPrefix(pattern, "*.") {
		return pattern == host
	}

	patternLabels := strings.Split(pattern, ".")
	hostLabels := strings.Split(host, ".")
	if len(patternLabels) != len(hostLabels) {
		return false
	}
	// Wildcard must be the whole first label and may not match an empty one.
	if patternLabels[0] != "*" || hostLabels[0] == "" {
		return false
	}
	for i := 1; i < len(patternLabels); i++ {
		if patternLabels[i] != hostLabels[i] {
			return false
		}
	}
	return true
}

func keyUsageNames(ku x509.KeyUsage) string {
	names := []string{}
	add := func(bit x509.KeyUsage, name string) {
		if ku&bit != 0 {
			names = append(names, name)
		}
	}
	add(x509.KeyUsageDigitalSignature, "digitalSignature")
	add(x509.KeyUsageContentCommitment, "contentCommitment")
	add(x509.KeyUsageKeyEncipherment, "keyEncipherment")
	add(x509.KeyUsageDataEncipherment, "dataEncipherment")
	add(x509.KeyUsageKeyAgreement, "keyAgreement")
	add(x509.KeyUsageCertSign, "keyCertSign")
	add(x509.KeyUsageCRLSign, "cRLSign")
	add(x509.KeyUsageEncipherOnly, "encipherOnly")
	add(x509.KeyUsageDecipherOnly, "decipherOnly")
	return strings.Join(names, ",")
}

func extKeyUsageName(eku x509.ExtKeyUsage) string {
	switch eku {
	case x509.ExtKeyUsageAny:
		return "any"
	case x509.ExtKeyUsageServerAuth:
		return "serverAuth"
	case x509.ExtKeyUsageClientAuth:
		return "clientAuth"
	case x509.ExtKeyUsageCodeSigning:
		return "codeSigning"
	case x509.ExtKeyUsageEmailProtection:
		return "emailProtection"
	case x509.ExtKeyUsageTimeStamping:
		return "timeStamping"
	case x509.ExtKeyUsageOCSPSigning:
		return "OCSPSigning"
	default:
		return fmt.Sprintf("eku(%d)", int(eku))
	}
}
