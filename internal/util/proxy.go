package util

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/zerocas99/zenload/internal/config"
)

// ProxyConfigured reports whether a rotating proxy pool is set up.
func ProxyConfigured() bool {
	return config.ProxyHost != "" && config.ProxyUserPrefix != "" &&
		config.ProxyPassword != "" && config.ProxyCount > 0
}

// RandomProxyURL picks one session from the pool. Providers rotate per
// request so a single burned session doesn't poison every download.
func RandomProxyURL() string {
	if !ProxyConfigured() {
		return ""
	}
	n := int64(1)
	if nBig, err := rand.Int(rand.Reader, big.NewInt(int64(config.ProxyCount))); err == nil {
		n = nBig.Int64() + 1
	}
	return fmt.Sprintf("http://%s-%d:%s@%s:%s",
		config.ProxyUserPrefix, n, config.ProxyPassword,
		config.ProxyHost, config.ProxyPort)
}

// GetProxyArgs returns the yt-dlp proxy flags, empty when no pool exists.
func GetProxyArgs() []string {
	url := RandomProxyURL()
	if url == "" {
		return nil
	}
	return []string{"--proxy", url}
}
