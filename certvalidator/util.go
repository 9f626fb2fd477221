package certvalidator

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"strings"
)

// namesEqual compares two distinguished names attribute by attribute.
// Attribute values use case-insensitive matching with outer whitespace
// ignored, which is how directory names compare in practice; attribute
// order within the name is significant.
func namesEqual(a, b pkix.Name) bool {
	return canonicalDN(a) == canonicalDN(b)
}

// canonicalDN renders a name in a normalized comparable form.
func canonicalDN(name pkix.Name) string {
	rdns := name.ToRDNSequence()
	var sb strings.Builder
	for _, rdn := range rdns {
		for _, atv := range rdn {
			sb.WriteString(atv.Type.String())
			sb.WriteByte('=')
			sb.WriteString(strings.ToLower(strings.TrimSpace(stringValue(atv.Value))))
			sb.WriteByte(',')
		}
		sb.WriteByte('/')
	}
	return sb.String()
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

// CompareCertificates reports whether a and b are the same certificate, by
// their encoded bytes.
func CompareCertificates(a, b *x509.Certificate) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Raw, b.Raw)
}

// IsSelfIssued reports whether cert's subject and issuer DNs match. Unlike
// isVerifiedSelfSigned this does not verify the signature; self-issued
// certificates (CA key rollover) are excluded from path-length counting.
func IsSelfIssued(cert *x509.Certificate) bool {
	return namesEqual(cert.Subject, cert.Issuer)
}
