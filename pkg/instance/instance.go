package instance

import "os"

const fallbackID = "worker-0"

// GetID identifies the running worker process in logs and lock ownership.
// WORKER_ID wins, then the hostname.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
