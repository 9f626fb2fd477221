package certvalidator

import (
	"crypto/x509"
	"fmt"
	"net"
	"strings"
)

// checkNameConstraints enforces ca's name constraints against subject's
// subject alternative names: DNS names, IP addresses, and email addresses.
// Violations are recorded on result with label identifying the constrained
// certificate's position.
func checkNameConstraints(ca, subject *x509.Certificate, label string, result *ValidationResult) {
	for _, dns := range subject.DNSNames {
		if len(ca.PermittedDNSDomains) > 0 && !anyDomainMatch(ca.PermittedDNSDomains, dns) {
			result.AddError(fmt.Sprintf("%s %q: DNS name %q is outside the permitted subtrees of %q",
				label, subject.Subject.CommonName, dns, ca.Subject.CommonName))
		}
		if anyDomainMatch(ca.ExcludedDNSDomains, dns) {
			result.AddError(fmt.Sprintf("%s %q: DNS name %q is in an excluded subtree of %q",
				label, subject.Subject.CommonName, dns, ca.Subject.CommonName))
		}
	}

	for _, ip := range subject.IPAddresses {
		if len(ca.PermittedIPRanges) > 0 && !anyIPRangeMatch(ca.PermittedIPRanges, ip) {
			result.AddError(fmt.Sprintf("%s %q: IP address %s is outside the permitted subtrees of %q",
				label, subject.Subject.CommonName, ip, ca.Subject.CommonName))
		}
		if anyIPRangeMatch(ca.ExcludedIPRanges, ip) {
			result.AddError(fmt.Sprintf("%s %q: IP address %s is in an excluded subtree of %q",
				label, subject.Subject.CommonName, ip, ca.Subject.CommonName))
		}
	}

	for _, email := range subject.EmailAddresses {
		if len(ca.PermittedEmailAddresses) > 0 && !anyEmailMatch(ca.PermittedEmailAddresses, email) {
			result.AddError(fmt.Sprintf("%s %q: email address %q is outside the permitted subtrees of %q",
				label, subject.Subject.CommonName, email, ca.Subject.CommonName))
		}
		if anyEmailMatch(ca.ExcludedEmailAddresses, email) {
			result.AddError(fmt.Sprintf("%s %q: email address %q is in an excluded subtree of %q",
				label, subject.Subject.CommonName, email, ca.Subject.CommonName))
		}
	}
}

// hasNameConstraints reports whether cert carries any of the constraint
// forms this validator enforces.
func hasNameConstraints(cert *x509.Certificate) bool {
	return len(cert.PermittedDNSDomains) > 0 || len(cert.ExcludedDNSDomains) > 0 ||
		len(cert.PermittedIPRanges) > 0 || len(cert.ExcludedIPRanges) > 0 ||
		len(cert.PermittedEmailAddresses) > 0 || len(cert.ExcludedEmailAddresses) > 0
}

// anyDomainMatch reports whether host falls under any of the constraint
// domains. A constraint of ".example.com" or "example.com" covers
// "example.com" itself and every label beneath it (RFC 5280 section
// 4.2.1.10 URI/DNS subtree matching).
func anyDomainMatch(constraints []string, host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, constraint := range constraints {
		constraint = strings.ToLower(strings.Trim(constraint, "."))
		if constraint == "" {
			continue
		}
		if host == constraint || strings.HasSuffix(host, "."+constraint) {
			return true
		}
	}
	return false
}

func anyIPRangeMatch(ranges []*net.IPNet, ip net.IP) bool {
	for _, r := range ranges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// anyEmailMatch covers both whole-mailbox constraints and host constraints
// applied to the mailbox's domain part.
func anyEmailMatch(constraints []string, email string) bool {
	email = strings.ToLower(email)
	domain := email
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		domain = email[at+1:]
	}
	for _, constraint := range constraints {
		constraint = strings.ToLower(constraint)
		if strings.ContainsRune(constraint, '@') {
			if email == constraint {
				return true
			}
			continue
		}
		if anyDomainMatch([]string{constraint}, domain) {
			return true
		}
	}
	return false
}
