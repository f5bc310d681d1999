package utils

import (
	"errors"
	"net/http"

	"github.com/upb/medins-agent/internal/authz"
)

// WriteMisconfigured writes a 500 response for a route whose access policy is invalid
func WriteMisconfigured(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   CodeMisconfigured,
		Message: "Access policy misconfigured",
	})
}

// DenialStatus returns the HTTP status for a guard denial kind
func DenialStatus(kind authz.DenyKind) int {
	switch kind {
	case authz.DenyUnauthenticated:
		return http.StatusUnauthorized
	case authz.DenyInsufficientPrivilege:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteDenial writes the response for a guard denial. Errors that are not an
// *authz.DenyError are written as misconfigured.
func WriteDenial(w http.ResponseWriter, err error) error {
	var deny *authz.DenyError
	if !errors.As(err, &deny) {
		return WriteMisconfigured(w)
	}

	switch deny.Kind {
	case authz.DenyUnauthenticated:
		return WriteUnauthorized(w, CodeUnauthorized, "Authentication required")
	case authz.DenyInsufficientPrivilege:
		return WriteForbidden(w, deny.Reason)
	default:
		return WriteMisconfigured(w)
	}
}
