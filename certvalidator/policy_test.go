package certvalidator

import (
	"context"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/ocsp"
)

const crlDP = "http://crl.example.test/int.crl"

// revocationFixture is a three-tier PKI whose leaf carries both an OCSP
// responder URL and a CRL distribution point, plus a checker wired to a
// mapFetcher with the clock pinned to evalTime.
type revocationFixture struct {
	pki     *testPKI
	fetcher *mapFetcher
	checker *RevocationChecker
}

func newRevocationFixture(t *testing.T, policy RevocationPolicy) *revocationFixture {
	t.Helper()

	pki := newTestPKI(t, certSpec{
		ocspURLs: []string{ocspURL},
		crlDPs:   []string{crlDP},
	})
	fetcher := newMapFetcher()
	checker := NewRevocationChecker(policy, fetcher)
	checker.OCSPClient.now = func() time.Time { return evalTime }
	checker.CRLCache.now = func() time.Time { return evalTime }

	return &revocationFixture{pki: pki, fetcher: fetcher, checker: checker}
}

func (f *revocationFixture) serveOCSP(t *testing.T, status int) {
	t.Helper()
	echoNonceResponder(t, f.fetcher, f.pki, status)
}

func (f *revocationFixture) serveCRL(t *testing.T, entries []x509.RevocationListEntry) {
	t.Helper()
	crl := mustMakeCRL(t, f.pki.inter, f.pki.interKey, 5, evalTime.Add(-time.Hour), evalTime.Add(48*time.Hour), entries)
	f.fetcher.responses[crlDP] = crl.Raw
}

func (f *revocationFixture) check(t *testing.T) (*LastCheckStatus, *ValidationResult) {
	t.Helper()
	result := NewValidationResult()
	status := f.checker.CheckRevocation(context.Background(), f.pki.leaf, f.pki.inter, evalTime, result)
	return status, result
}

func TestRevocationChecker_Disabled(t *testing.T) {
	f := newRevocationFixture(t, RevocationDisabled)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.Empty(t, status.MethodsTried)
	assert.True(t, result.IsValid())
	assert.Empty(t, f.fetcher.fetchedURLs())
}

func TestRevocationChecker_OcspOnlyGood(t *testing.T) {
	f := newRevocationFixture(t, RevocationOcspOnly)
	f.serveOCSP(t, ocsp.Good)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.Equal(t, []string{"ocsp"}, status.MethodsTried)
	assert.True(t, result.IsValid())
}

func TestRevocationChecker_OcspOnlyInconclusiveIsError(t *testing.T) {
	f := newRevocationFixture(t, RevocationOcspOnly)
	f.fetcher.errs[ocspURL] = errors.New("responder unreachable")

	status, result := f.check(t)
	assert.False(t, status.Result)
	assert.False(t, result.IsValid())
	assert.Equal(t, []string{"ocsp"}, status.MethodsTried)
}

func TestRevocationChecker_CrlOnlyGood(t *testing.T) {
	f := newRevocationFixture(t, RevocationCrlOnly)
	f.serveCRL(t, nil)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.Equal(t, []string{"crl"}, status.MethodsTried)
	assert.True(t, result.IsValid())
	// OCSP must never have been consulted.
	for _, url := range f.fetcher.fetchedURLs() {
		assert.False(t, hasPrefix(url, ocspURL), "unexpected OCSP fetch %s", url)
	}
}

func TestRevocationChecker_CrlOnlyRevoked(t *testing.T) {
	f := newRevocationFixture(t, RevocationCrlOnly)
	f.serveCRL(t, []x509.RevocationListEntry{{
		SerialNumber:   f.pki.leaf.SerialNumber,
		RevocationTime: time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
		ReasonCode:     int(CRLReasonKeyCompromise),
	}})

	status, result := f.check(t)
	assert.False(t, status.Result)
	require.False(t, result.IsValid())
	assert.Contains(t, result.Errors[0], "key compromise")
}

func TestRevocationChecker_CrlOnlyNoDistributionPointsIsError(t *testing.T) {
	pki := newTestPKI(t, certSpec{}) // no CRL DPs on the leaf
	fetcher := newMapFetcher()
	checker := NewRevocationChecker(RevocationCrlOnly, fetcher)
	checker.CRLCache.now = func() time.Time { return evalTime }

	result := NewValidationResult()
	status := checker.CheckRevocation(context.Background(), pki.leaf, pki.inter, evalTime, result)

	assert.False(t, status.Result)
	require.False(t, result.IsValid())
	assert.Contains(t, result.Errors[0], "distribution points")
}

func TestRevocationChecker_OcspPreferredFallsBackToCRL(t *testing.T) {
	f := newRevocationFixture(t, RevocationOcspPreferred)
	f.fetcher.errs[ocspURL] = errors.New("responder unreachable")
	f.serveCRL(t, nil)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.Equal(t, []string{"ocsp", "crl"}, status.MethodsTried)
	assert.True(t, result.IsValid())
}

func TestRevocationChecker_OcspPreferredConclusiveSkipsCRL(t *testing.T) {
	f := newRevocationFixture(t, RevocationOcspPreferred)
	f.serveOCSP(t, ocsp.Good)

	status, _ := f.check(t)
	assert.Equal(t, []string{"ocsp"}, status.MethodsTried)
	for _, url := range f.fetcher.fetchedURLs() {
		assert.False(t, hasPrefix(url, crlDP), "unexpected CRL fetch %s", url)
	}
}

func TestRevocationChecker_OcspUnknownTriggersFallback(t *testing.T) {
	f := newRevocationFixture(t, RevocationOcspPreferred)
	f.serveOCSP(t, ocsp.Unknown)
	f.serveCRL(t, nil)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.Equal(t, []string{"ocsp", "crl"}, status.MethodsTried)
	assert.True(t, result.IsValid())
}

func TestRevocationChecker_CrlPreferredFallsBackToOCSP(t *testing.T) {
	f := newRevocationFixture(t, RevocationCrlPreferred)
	f.fetcher.errs[crlDP] = errors.New("mirror down")
	f.serveOCSP(t, ocsp.Good)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.Equal(t, []string{"crl", "ocsp"}, status.MethodsTried)
	assert.True(t, result.IsValid())
}

func TestRevocationChecker_SoftFailBothUnreachable(t *testing.T) {
	f := newRevocationFixture(t, RevocationSoftFail)
	f.fetcher.errs[ocspURL] = errors.New("responder unreachable")
	f.fetcher.errs[crlDP] = errors.New("mirror down")

	status, result := f.check(t)
	assert.True(t, status.Result, "soft-fail downgrades double inconclusive to ok")
	assert.True(t, result.IsValid())
	assert.Equal(t, []string{"ocsp", "crl"}, status.MethodsTried)
	assert.GreaterOrEqual(t, len(result.Warnings), 2)
}

func TestRevocationChecker_SoftFailStillReportsRevoked(t *testing.T) {
	f := newRevocationFixture(t, RevocationSoftFail)
	f.serveOCSP(t, ocsp.Revoked)

	status, result := f.check(t)
	assert.False(t, status.Result)
	assert.False(t, result.IsValid())
}

func TestRevocationChecker_HardFailBothUnreachable(t *testing.T) {
	f := newRevocationFixture(t, RevocationHardFail)
	f.fetcher.errs[ocspURL] = errors.New("responder unreachable")
	f.fetcher.errs[crlDP] = errors.New("mirror down")

	status, result := f.check(t)
	assert.False(t, status.Result, "hard-fail treats double inconclusive as revoked")
	require.False(t, result.IsValid())
	assert.Contains(t, result.Errors[len(result.Errors)-1], "hard-fail")
}

func TestRevocationChecker_HardFailConclusiveGood(t *testing.T) {
	f := newRevocationFixture(t, RevocationHardFail)
	f.fetcher.errs[ocspURL] = errors.New("responder unreachable")
	f.serveCRL(t, nil)

	status, result := f.check(t)
	assert.True(t, status.Result)
	assert.True(t, result.IsValid())
}
