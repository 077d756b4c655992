package sshpool

import "strings"

// parseConnectString splits "user@host:port" into its parts; any piece may
// be absent. A piece present here overrides the corresponding
// ~/.ssh/config value for that connection.
func parseConnectString(s string) (user, host, port string) {
	if at := strings.LastIndex(s, "@"); at >= 0 {
		user = s[:at]
		s = s[at+1:]
	}
	if colon := strings.LastIndex(s, ":"); colon >= 0 {
		host = s[:colon]
		port = s[colon+1:]
	} else {
		host = s
	}
	return user, host, port
}
