package api

import (
	"net"
	"net/http"
)

// loopbackOnly rejects any request whose remote address isn't
// 127.0.0.1/::1, so the force-fail and cleanup-terminal endpoints can
// only be driven from the box the LP node runs on.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			http.Error(w, "forbidden: admin endpoints are loopback-only", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
