package provisioning

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"

	"go_hostpanel/internal/config"
)

// Names are the per-service identifiers derived from the primary domain
type Names struct {
	SystemUser   string
	MySQLUser    string
	PHPPool      string
	FTPUser      string
	HomeDir      string
	DocumentRoot string
}

// DeriveNames maps a domain to stable, collision-resistant identifiers.
// The user name is at most 16 characters: up to ten sanitized domain
// characters followed by six hex characters of the domain hash.
func DeriveNames(domain string, cfg config.ProvisioningConfig) Names {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	var b strings.Builder
	for _, r := range domain {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 10 {
			break
		}
	}
	prefix := b.String()
	if prefix == "" || (prefix[0] >= '0' && prefix[0] <= '9') {
		prefix = "u" + prefix
		if len(prefix) > 10 {
			prefix = prefix[:10]
		}
	}

	sum := sha1.Sum([]byte(domain))
	user := prefix + hex.EncodeToString(sum[:])[:6]

	homeBase := cfg.HomeBase
	if homeBase == "" {
		homeBase = "/home"
	}
	webRoot := cfg.WebRootName
	if webRoot == "" {
		webRoot = "public_html"
	}
	home := filepath.Join(homeBase, user)

	return Names{
		SystemUser:   user,
		MySQLUser:    user,
		PHPPool:      user,
		FTPUser:      user,
		HomeDir:      home,
		DocumentRoot: filepath.Join(home, webRoot),
	}
}
