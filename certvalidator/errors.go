package certvalidator

import "fmt"

// CRLReason is the revocation reason code carried by CRL entries and OCSP
// responses (RFC 5280 section 5.3.1).
type CRLReason int

const (
	CRLReasonUnspecified          CRLReason = 0
	CRLReasonKeyCompromise        CRLReason = 1
	CRLReasonCACompromise         CRLReason = 2
	CRLReasonAffiliationChanged   CRLReason = 3
	CRLReasonSuperseded           CRLReason = 4
	CRLReasonCessationOfOperation CRLReason = 5
	CRLReasonCertificateHold      CRLReason = 6
	CRLReasonRemoveFromCRL        CRLReason = 8
	CRLReasonPrivilegeWithdrawn   CRLReason = 9
	CRLReasonAACompromise         CRLReason = 10
)

func (r CRLReason) String() string {
	switch r {
	case CRLReasonUnspecified:
		return "unspecified"
	case CRLReasonKeyCompromise:
		return "key compromise"
	case CRLReasonCACompromise:
		return "CA compromise"
	case CRLReasonAffiliationChanged:
		return "affiliation changed"
	case CRLReasonSuperseded:
		return "superseded"
	case CRLReasonCessationOfOperation:
		return "cessation of operation"
	case CRLReasonCertificateHold:
		return "certificate hold"
	case CRLReasonRemoveFromCRL:
		return "remove from CRL"
	case CRLReasonPrivilegeWithdrawn:
		return "privilege withdrawn"
	case CRLReasonAACompromise:
		return "AA compromise"
	default:
		return fmt.Sprintf("unknown reason (%d)", int(r))
	}
}
