// Package geoip builds IP rule providers from a local MaxMind database.
package geoip

import (
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"github.com/xxxbrian/clash-geosite/internal/converter"
)

type GeoIP struct {
	mu     sync.RWMutex
	cidrs  map[string][]*net.IPNet
	logger *log.Logger
}

// NewGeoIP creates an empty GeoIP. A nil logger uses log.Default().
func NewGeoIP(logger *log.Logger) *GeoIP {
	if logger == nil {
		logger = log.Default()
	}
	return &GeoIP{
		cidrs:  make(map[string][]*net.IPNet),
		logger: logger,
	}
}

// LoadFile reads and indexes an MMDB file.
func (g *GeoIP) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read mmdb: %w", err)
	}
	return g.Load(data)
}

// Load parses the MMDB bytes and builds the in-memory index
func (g *GeoIP) Load(data []byte) error {
	db, err := maxminddb.FromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to open mmdb: %w", err)
	}
	defer db.Close()

	newCIDRs := make(map[string][]*net.IPNet)

	networks := db.Networks(maxminddb.SkipAliasedNetworks)
	count := 0
	for networks.Next() {
		var record interface{}
		subnet, err := networks.Network(&record)
		if err != nil {
			continue
		}

		code := recordCode(record)
		if code == "" {
			continue
		}

		newCIDRs[code] = append(newCIDRs[code], subnet)
		count++
	}
	if err := networks.Err(); err != nil {
		return fmt.Errorf("walk mmdb: %w", err)
	}
	g.logger.Printf("GeoIP DB loaded (%s): %d networks, %d codes", db.Metadata.DatabaseType, count, len(newCIDRs))

	g.mu.Lock()
	g.cidrs = newCIDRs
	g.mu.Unlock()

	return nil
}

// recordCode extracts the country or category code of a record. Lite
// databases store it as a bare string, GeoLite2 as country.iso_code.
func recordCode(record interface{}) string {
	var code string
	switch v := record.(type) {
	case string:
		code = v
	case map[string]interface{}:
		if c, ok := v["country"].(map[string]interface{}); ok {
			code, _ = c["iso_code"].(string)
		} else if iso, ok := v["iso_code"].(string); ok {
			code = iso
		} else if s, ok := v["code"].(string); ok {
			code = s
		}
	}
	return strings.ToUpper(code)
}

// Codes returns the known codes in sorted order.
func (g *GeoIP) Codes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	codes := make([]string, 0, len(g.cidrs))
	for code := range g.cidrs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetCIDRs returns the list of networks for the given country code or category
func (g *GeoIP) GetCIDRs(code string) ([]*net.IPNet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cidrs, ok := g.cidrs[strings.ToUpper(code)]
	return cidrs, ok
}

// Classical renders the networks of code as classical IP rules, deduplicated
// in database order.
func (g *GeoIP) Classical(code string, withPolicy bool, policy string) ([]string, bool) {
	cidrs, ok := g.GetCIDRs(code)
	if !ok {
		return nil, false
	}
	return converter.Encode(cidrs, CIDRFormat(withPolicy, policy)), true
}

// CIDRFormat returns the formatter for IP-CIDR/IP-CIDR6 rules. Rules carry
// no-resolve so a domain match never triggers a DNS lookup.
func CIDRFormat(withPolicy bool, policy string) func(*net.IPNet) (string, bool) {
	return func(n *net.IPNet) (string, bool) {
		if n == nil {
			return "", false
		}
		kind := "IP-CIDR6"
		if n.IP.To4() != nil {
			kind = "IP-CIDR"
		}
		line := kind + "," + n.String()
		if withPolicy {
			line += "," + policy
		}
		return line + ",no-resolve", true
	}
}
