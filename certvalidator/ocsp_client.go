package certvalidator

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// ocspNonceOID is the id-pkix-ocsp-nonce extension (RFC 8954).
var ocspNonceOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

const ocspNonceLength = 16

// DefaultOCSPConnectTimeout and DefaultOCSPReadTimeout are the per-client
// defaults (5s connect / 10s response).
const (
	DefaultOCSPConnectTimeout = 5 * time.Second
	DefaultOCSPReadTimeout    = 10 * time.Second
)

// ocspCertID mirrors RFC 6960's CertID for manual request construction; the
// golang.org/x/crypto/ocsp encoder used for response parsing does not expose
// a nonce-capable request builder, so the request side is built by hand.
type ocspCertID struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

type ocspRequestInner struct {
	ReqCert ocspCertID
}

type ocspExtension struct {
	ID       asn1.ObjectIdentifier
	Critical bool `asn1:"optional"`
	Value    []byte
}

type ocspTBSRequest struct {
	Version     int `asn1:"optional,explicit,default:0,tag:0"`
	RequestList []ocspRequestInner
	Extensions  []ocspExtension `asn1:"optional,explicit,tag:2"`
}

type ocspRequestMessage struct {
	TBSRequest ocspTBSRequest
}

var oidSHA1 = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}

// BuildOCSPRequest encodes a DER OCSPRequest for cert against issuer. When
// nonce is non-nil it is attached as the id-pkix-ocsp-nonce extension.
func BuildOCSPRequest(cert, issuer *x509.Certificate, nonce []byte) ([]byte, error) {
	return buildOCSPRequest(cert, issuer, nonce)
}

// ParseOCSPResponse parses raw and verifies its signature against issuer,
// accepting a delegated responder certificate embedded in the response.
func ParseOCSPResponse(raw []byte, issuer *x509.Certificate) (*ocsp.Response, error) {
	return parseOCSPResponse(raw, issuer)
}

// buildOCSPRequest encodes an OCSPRequest DER message for cert/issuer using
// SHA-1 hashing (RFC 6960 interoperability default) and, when nonce is
// non-nil, attaches it as the id-pkix-ocsp-nonce extension.
func buildOCSPRequest(cert, issuer *x509.Certificate, nonce []byte) ([]byte, error) {
	issuerNameHash := sha1.Sum(issuer.RawSubject)
	issuerKeyHash := sha1.Sum(publicKeyBitString(issuer))

	tbs := ocspTBSRequest{
		RequestList: []ocspRequestInner{{
			ReqCert: ocspCertID{
				HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: oidSHA1},
				IssuerNameHash: issuerNameHash[:],
				IssuerKeyHash:  issuerKeyHash[:],
				SerialNumber:   cert.SerialNumber,
			},
		}},
	}
	if nonce != nil {
		val, err := asn1.Marshal(nonce)
		if err != nil {
			return nil, err
		}
		tbs.Extensions = []ocspExtension{{ID: ocspNonceOID, Value: val}}
	}

	return asn1.Marshal(ocspRequestMessage{TBSRequest: tbs})
}

// publicKeyBitString returns the raw bit-string content of the certificate's
// SubjectPublicKeyInfo, which is what issuerKeyHash is defined over in
// RFC 6960 §4.1.1.
func publicKeyBitString(cert *x509.Certificate) []byte {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return cert.RawSubjectPublicKeyInfo
	}
	return spki.PublicKey.RightAlign()
}

func extractNonce(resp *ocsp.Response) []byte {
	for _, ext := range resp.Extensions {
		if ext.Id.Equal(ocspNonceOID) {
			var raw []byte
			if _, err := asn1.Unmarshal(ext.Value, &raw); err == nil {
				return raw
			}
			return ext.Value
		}
	}
	return nil
}

// ocspCacheEntry caches a validated response keyed by the (serial, issuer
// serial) pair.
type ocspCacheEntry struct {
	resp *ocsp.Response
}

// OCSPClient implements the OCSP flow: request/response construction, nonce
// enforcement, freshness, issuer binding, signature verification (direct or
// via a delegated OCSP signing certificate), and a process-local cache.
type OCSPClient struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UseNonce       bool
	Fetcher        RevocationFetcher

	mu    sync.Mutex
	cache map[string]*ocspCacheEntry
	now   func() time.Time
}

// NewOCSPClient returns a client with the defaults: nonces on,
// 5s/10s timeouts.
func NewOCSPClient(fetcher RevocationFetcher) *OCSPClient {
	return &OCSPClient{
		ConnectTimeout: DefaultOCSPConnectTimeout,
		ReadTimeout:    DefaultOCSPReadTimeout,
		UseNonce:       true,
		Fetcher:        fetcher,
		cache:          make(map[string]*ocspCacheEntry),
		now:            time.Now,
	}
}

func ocspCacheKey(cert, issuer *x509.Certificate) string {
	h := sha256.New()
	h.Write(cert.SerialNumber.Bytes())
	h.Write(issuer.SerialNumber.Bytes())
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Check runs the full OCSP flow for (cert, issuer) against url (or the
// certificate's first AIA OCSP URL if url is empty). It returns the parsed
// response and whether the lookup was conclusive (good or revoked).
func (c *OCSPClient) Check(ctx context.Context, cert, issuer *x509.Certificate, url string, result *ValidationResult) (resp *ocsp.Response, conclusive bool, revoked bool) {
	key := ocspCacheKey(cert, issuer)

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && !c.isExpired(entry.resp) {
		c.mu.Unlock()
		return c.evaluate(entry.resp, result)
	}
	c.mu.Unlock()

	if url == "" {
		if len(cert.OCSPServer) == 0 {
			result.AddWarning("no OCSP responder URL available")
			return nil, false, false
		}
		url = cert.OCSPServer[0]
	}

	var nonce []byte
	if c.UseNonce {
		nonce = make([]byte, ocspNonceLength)
		if _, err := rand.Read(nonce); err != nil {
			result.AddError(fmt.Sprintf("failed to generate OCSP nonce: %v", err))
			return nil, false, false
		}
	}

	reqBytes, err := buildOCSPRequest(cert, issuer, nonce)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to build OCSP request: %v", err))
		return nil, false, false
	}

	// The fetcher port only carries a URL, so the request rides in the path
	// using the RFC 6960 GET encoding.
	requestURL := strings.TrimSuffix(url, "/") + "/" + base64.StdEncoding.EncodeToString(reqBytes)

	reqCtx := ctx
	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.ConnectTimeout+c.ReadTimeout)
		defer cancel()
	}

	raw, err := c.Fetcher.Fetch(reqCtx, requestURL)
	if err != nil {
		result.AddWarning(fmt.Sprintf("OCSP fetch from %s failed: %v", url, err))
		return nil, false, false
	}

	resp, err = parseOCSPResponse(raw, issuer)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to parse OCSP response: %v", err))
		return nil, false, false
	}

	if nonce != nil {
		respNonce := extractNonce(resp)
		if respNonce == nil || !bytesEqual(respNonce, nonce) {
			result.AddError("OCSP response nonce does not match request nonce")
			return nil, false, false
		}
	}

	if resp.SerialNumber == nil || resp.SerialNumber.Cmp(cert.SerialNumber) != 0 {
		result.AddError("OCSP response serial number does not match request")
		return nil, false, false
	}

	now := c.now()
	if resp.ThisUpdate.After(now) {
		result.AddError(fmt.Sprintf("OCSP response thisUpdate %s is in the future", resp.ThisUpdate))
		return nil, false, false
	}
	if !resp.NextUpdate.IsZero() && resp.NextUpdate.Before(now) {
		result.AddError(fmt.Sprintf("OCSP response for %s expired at %s", cert.SerialNumber, resp.NextUpdate))
		return nil, false, false
	}

	if !c.isExpired(resp) {
		c.mu.Lock()
		c.cache[key] = &ocspCacheEntry{resp: resp}
		c.mu.Unlock()
	}

	return c.evaluate(resp, result)
}

func (c *OCSPClient) isExpired(resp *ocsp.Response) bool {
	if resp.NextUpdate.IsZero() {
		return false
	}
	return resp.NextUpdate.Before(c.now())
}

func (c *OCSPClient) evaluate(resp *ocsp.Response, result *ValidationResult) (*ocsp.Response, bool, bool) {
	switch resp.Status {
	case ocsp.Good:
		result.AddSuccess(fmt.Sprintf("OCSP: certificate %s is good", resp.SerialNumber))
		return resp, true, false
	case ocsp.Revoked:
		result.AddError(fmt.Sprintf("OCSP: certificate %s was revoked at %s, reason %s",
			resp.SerialNumber, resp.RevokedAt.Format(time.RFC3339), CRLReason(resp.RevocationReason)))
		return resp, true, true
	default:
		result.AddWarning(fmt.Sprintf("OCSP: certificate %s status unknown", resp.SerialNumber))
		return resp, false, false
	}
}

// parseOCSPResponse parses and verifies raw against issuer, falling back to
// a delegated OCSP signing certificate embedded in the response when the
// direct verification against issuer fails.
func parseOCSPResponse(raw []byte, issuer *x509.Certificate) (*ocsp.Response, error) {
	resp, err := ocsp.ParseResponse(raw, issuer)
	if err == nil {
		return resp, nil
	}

	unverified, uerr := ocsp.ParseResponse(raw, nil)
	if uerr != nil {
		return nil, err
	}
	delegate := unverified.Certificate
	if delegate == nil {
		return nil, err
	}
	if !hasEKU(delegate, x509.ExtKeyUsageOCSPSigning) {
		return nil, fmt.Errorf("embedded OCSP responder certificate lacks OCSPSigning EKU: %w", err)
	}
	if ok, verr := verifyCertSignedBy(delegate, issuer); verr != nil || !ok {
		return nil, fmt.Errorf("embedded OCSP responder certificate does not chain to issuer: %w", err)
	}

	return ocsp.ParseResponse(raw, delegate)
}

func hasEKU(cert *x509.Certificate, want x509.ExtKeyUsage) bool {
	for _, eku := range cert.ExtKeyUsage {
		if eku == want {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
