package ws

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/auth"
)

// extractToken reads the bearer token from ?token= or the Authorization
// header
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// WrapWithAuth rejects Socket.IO handshakes without a valid JWT
func WrapWithAuth(next http.Handler, signer *auth.Signer, logger *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/socket.io/") {
			token := extractToken(r)
			if token == "" {
				logger.WithField("remote", r.RemoteAddr).Warn("handshake rejected: no token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := signer.Parse(token)
			if err != nil {
				logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("handshake rejected: invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			logger.WithFields(logrus.Fields{"actor": claims.ActorID, "role": claims.Role}).Debug("handshake accepted")
		}
		next.ServeHTTP(w, r)
	})
}
