package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"tailor/internal/api"
	"tailor/internal/logging"
)

// guard wraps next with bearer token checking. An empty token disables it.
func (s *apiServer) guard(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	want := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r.Header.Get("Authorization"), want) {
			s.log().Debug("rejected unauthenticated request",
				logging.String("path", r.URL.Path),
				logging.String("remote", r.RemoteAddr),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="tailord"`)
			s.writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized", Kind: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func bearerMatches(header string, want []byte) bool {
	scheme, presented, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), want) == 1
}
