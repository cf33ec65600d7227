package config

import (
	"os"
	"strings"
	"sync"
)

const dockerHostGateway = "host.docker.internal"

// IsRunningInDocker reports whether /.dockerenv exists. Cached after the first call.
var IsRunningInDocker = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// ResolveHostForDocker maps a loopback database host to host.docker.internal
// when the gateway runs in a container, so databases published on the Docker
// host stay reachable with the same configuration. Connection strings and
// URLs are left untouched.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostGateway
	}
	return host
}
