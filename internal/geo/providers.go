package geo

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/oschwald/geoip2-golang"
)

// MaxMindProvider answers lookups from a local GeoLite2/GeoIP2 City
// database file. No network, so it always goes first in the chain.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

// NewMaxMindProvider opens the database at path. A missing or unreadable
// file yields a provider that reports itself unavailable instead of an
// error, so deployments without the file still start.
func NewMaxMindProvider(path string) *MaxMindProvider {
	if path == "" {
		return &MaxMindProvider{}
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return &MaxMindProvider{}
	}
	return &MaxMindProvider{reader: reader}
}

func (p *MaxMindProvider) Name() string    { return "maxmind" }
func (p *MaxMindProvider) Available() bool { return p.reader != nil }

func (p *MaxMindProvider) Close() error {
	if p.reader == nil {
		return nil
	}
	return p.reader.Close()
}

func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("invalid ip %q", ip)
	}

	record, err := p.reader.City(parsed)
	if err != nil {
		return Location{}, fmt.Errorf("maxmind lookup: %w", err)
	}

	location := Location{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		location.Region = record.Subdivisions[0].Names["en"]
	}
	return location, nil
}

// IPAPIProvider queries the ip-api.com JSON endpoint.
type IPAPIProvider struct {
	baseURL string
	client  *http.Client
}

func NewIPAPIProvider(baseURL string, client *http.Client) *IPAPIProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IPAPIProvider{baseURL: baseURL, client: client}
}

func (p *IPAPIProvider) Name() string    { return "ip-api" }
func (p *IPAPIProvider) Available() bool { return p.baseURL != "" }

func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,regionName,city,timezone", p.baseURL, ip)

	var response struct {
		Status      string `json:"status"`
		Message     string `json:"message"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
		RegionName  string `json:"regionName"`
		City        string `json:"city"`
		Timezone    string `json:"timezone"`
	}
	if err := fetchJSON(ctx, p.client, url, &response); err != nil {
		return Location{}, err
	}
	if response.Status != "success" {
		return Location{}, fmt.Errorf("ip-api: %s", response.Message)
	}
	return Location{
		Country:     response.Country,
		CountryCode: response.CountryCode,
		Region:      response.RegionName,
		City:        response.City,
		Timezone:    response.Timezone,
	}, nil
}

// IPWhoisProvider queries the ipwho.is JSON endpoint as a second
// network fallback. Its free tier allows HTTPS, unlike ip-api.
type IPWhoisProvider struct {
	baseURL string
	client  *http.Client
}

func NewIPWhoisProvider(baseURL string, client *http.Client) *IPWhoisProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IPWhoisProvider{baseURL: baseURL, client: client}
}

func (p *IPWhoisProvider) Name() string    { return "ipwhois" }
func (p *IPWhoisProvider) Available() bool { return p.baseURL != "" }

func (p *IPWhoisProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	var response struct {
		Success     bool   `json:"success"`
		Message     string `json:"message"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
		Region      string `json:"region"`
		City        string `json:"city"`
		Timezone    struct {
			ID string `json:"id"`
		} `json:"timezone"`
	}
	if err := fetchJSON(ctx, p.client, fmt.Sprintf("%s/%s", p.baseURL, ip), &response); err != nil {
		return Location{}, err
	}
	if !response.Success {
		return Location{}, fmt.Errorf("ipwhois: %s", response.Message)
	}
	return Location{
		Country:     response.Country,
		CountryCode: response.CountryCode,
		Region:      response.Region,
		City:        response.City,
		Timezone:    response.Timezone.ID,
	}, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geo request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
