package instance

import "os"

// ID identifies the running process in logs. CHECKOUT_INSTANCE_ID wins, then
// the container hostname.
func ID() string {
	if id := os.Getenv("CHECKOUT_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
