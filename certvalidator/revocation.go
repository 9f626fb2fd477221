package certvalidator

import (
	"context"
	"crypto/x509"
	"fmt"
	"math/big"
	"time"
)

// ValidateCRL checks crl against its issuer certificate: issuer DN
// match, thisUpdate not in the future, signature verification, and a
// not-yet-escalated warning (not an error) for an expired nextUpdate.
func ValidateCRL(crl *x509.RevocationList, issuerCert *x509.Certificate, now time.Time, result *ValidationResult) error {
	if !namesEqual(crl.Issuer, issuerCert.Subject) {
		err := fmt.Errorf("CRL issuer %q does not match certificate subject %q", crl.Issuer, issuerCert.Subject)
		result.AddError(err.Error())
		return err
	}
	if crl.ThisUpdate.After(now) {
		err := fmt.Errorf("CRL thisUpdate %s is in the future", crl.ThisUpdate)
		result.AddError(err.Error())
		return err
	}
	if !crl.NextUpdate.IsZero() && crl.NextUpdate.Before(now) {
		result.AddWarning(fmt.Sprintf("CRL issued by %q expired at %s", crl.Issuer, crl.NextUpdate))
	}
	if err := crl.CheckSignatureFrom(issuerCert); err != nil {
		err = fmt.Errorf("CRL signature verification failed: %w", err)
		result.AddError(err.Error())
		return err
	}
	return nil
}

// CheckRevocationViaCRL validates crl then looks cert up by serial. A
// RemoveFromCRL (8) entry is treated as not-revoked: the certificate was
// held and has since been released. The bool return reports whether the
// lookup was conclusive.
func CheckRevocationViaCRL(cert *x509.Certificate, crl *x509.RevocationList, issuerCert *x509.Certificate, now time.Time, result *ValidationResult) (conclusive bool, revoked bool) {
	if err := ValidateCRL(crl, issuerCert, now, result); err != nil {
		return false, false
	}

	entry := findRevokedEntry(crl, cert.SerialNumber)
	if entry == nil {
		result.AddSuccess(fmt.Sprintf("certificate %s not present in CRL issued by %q", cert.SerialNumber, crl.Issuer))
		return true, false
	}
	reason := CRLReason(entry.ReasonCode)
	if reason == CRLReasonRemoveFromCRL {
		result.AddSuccess(fmt.Sprintf("certificate %s was held (reason 8) and has been released", cert.SerialNumber))
		return true, false
	}

	result.AddError(fmt.Sprintf("certificate %s was revoked at %s, reason %s",
		cert.SerialNumber, entry.RevocationTime.Format(time.RFC3339), reason))
	return true, true
}

// findRevokedEntry looks serial up among the CRL's revoked entries.
func findRevokedEntry(crl *x509.RevocationList, serial *big.Int) *x509.RevocationListEntry {
	for i := range crl.RevokedCertificateEntries {
		entry := &crl.RevokedCertificateEntries[i]
		if entry.SerialNumber != nil && entry.SerialNumber.Cmp(serial) == 0 {
			return entry
		}
	}
	return nil
}

// FetchCRLForCert refreshes a CRL from its distribution points: prefer a
// cached CRL outside the refresh threshold, otherwise try the certificate's
// distribution points in order, rejecting any CRL whose number regresses. silent
// suppresses the NoCRLAvailable error when every distribution point fails
// and nothing is cached.
func FetchCRLForCert(ctx context.Context, cert *x509.Certificate, issuerCert *x509.Certificate, cache *CRLCache, fetcher RevocationFetcher, refreshThreshold time.Duration, silent bool, result *ValidationResult) (*x509.RevocationList, error) {
	issuerDN := issuerCert.Subject.String()

	if cached, ok := cache.Get(issuerDN); ok && !cache.IsExpiringSoon(issuerDN, refreshThreshold) {
		return cached, nil
	}

	var lastErr error
	for _, dp := range cert.CRLDistributionPoints {
		raw, err := fetcher.Fetch(ctx, dp)
		if err != nil {
			lastErr = err
			continue
		}
		crl, err := x509.ParseRevocationList(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if !namesEqual(crl.Issuer, issuerCert.Subject) {
			lastErr = fmt.Errorf("CRL from %s has issuer %q, expected %q", dp, crl.Issuer, issuerCert.Subject)
			continue
		}
		if err := crl.CheckSignatureFrom(issuerCert); err != nil {
			lastErr = fmt.Errorf("CRL from %s failed signature verification: %w", dp, err)
			continue
		}
		if cache.Put(issuerDN, crl) {
			return crl, nil
		}
		// Regression: cached CRL is newer; fall through to use it.
		if cached, ok := cache.Get(issuerDN); ok {
			return cached, nil
		}
	}

	if cached, ok := cache.Get(issuerDN); ok {
		result.AddWarning(fmt.Sprintf("all CRL distribution points for %q failed, using cached CRL: %v", issuerDN, lastErr))
		return cached, nil
	}
	if silent {
		return nil, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no CRL distribution points for %q", issuerDN)
	}
	return nil, fmt.Errorf("no CRL available for %q: %w", issuerDN, lastErr)
}
