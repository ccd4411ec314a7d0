package platform

import (
	"net/url"
	"strings"

	"store-migration-service/internal/models"
)

const firstPartySuffix = ".myshopify.com"

// Storefront path patterns recognized on custom domains
var storefrontPathPatterns = []string{
	"/products/",
	"/collections/",
	"/produto/",
}

// Classify resolves a source URL into a platform classification. It is a
// pure function of the URL: no network, no shared state.
//
// First-party subdomains get the structured API strategy; recognized
// storefront paths on custom domains fall back to scraping. Anything else
// is not supported, which is terminal: the caller must supply another URL.
func Classify(rawURL string) Classification {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		// Accept bare host[/path] inputs the way browsers do
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil || u.Host == "" {
			return Classification{PlatformDetected: false, Method: models.AccessMethodUnknown}
		}
	}

	host := strings.ToLower(u.Hostname())
	if strings.HasSuffix(host, firstPartySuffix) {
		return Classification{PlatformDetected: true, Method: models.AccessMethodAPI}
	}

	path := strings.ToLower(u.EscapedPath())
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, pattern := range storefrontPathPatterns {
		if strings.Contains(path, pattern) {
			return Classification{PlatformDetected: true, Method: models.AccessMethodScraping}
		}
	}

	return Classification{PlatformDetected: false, Method: models.AccessMethodUnknown}
}
