package instance

import (
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

const workerIDEnv = "STOREFRONT_WORKER_ID"

// GetID returns the worker instance identifier, falling back to the hostname.
func GetID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker-0"
	}
	return env.Get(workerIDEnv, host)
}
