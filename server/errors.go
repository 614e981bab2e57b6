package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/metascan/safefetch"
)

// errorResponse maps an analysis failure to a status and a body that never
// carries resolver output or internal addresses.
func errorResponse(err error) (int, gin.H) {
	code := safefetch.CodeOf(err)
	return statusFor(code), gin.H{
		"error": safefetch.PublicMessage(err),
		"code":  code.String(),
	}
}

func statusFor(code safefetch.Code) int {
	switch {
	case code.IsValidation():
		return http.StatusBadRequest
	case code == safefetch.CodeTimeout:
		return http.StatusGatewayTimeout
	case code == safefetch.CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
