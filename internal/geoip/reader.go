package geoip

import (
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// Provider wraps the GeoIP2 database reader to provide country lookup functionality.
type Provider struct {
	db *geoip2.Reader
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close closes the underlying GeoIP database reader. Safe on a nil Provider.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}

	return p.db.Close()
}

// CountryCode looks up the ISO country code (e.g., "US", "DE") of a server address.
// It returns an empty string for a nil Provider, private ranges and unknown addresses.
func (p *Provider) CountryCode(addr netip.Addr) string {
	if p == nil || !addr.IsValid() || addr.IsPrivate() || addr.IsLoopback() {
		return ""
	}

	record, err := p.db.Country(net.IP(addr.AsSlice()))
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}
