// Package config defines kapibara's on-disk configuration schema and loads
// it from YAML or JSON, and builds the wired dispatch.Config from it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TLS configures a transport's TLS wrapping. On an inbound, Domains select
// which names a generated self-signed certificate covers (ignored if
// CertFile/KeyFile are set); on an outbound, Domains is unused and
// Insecure controls certificate verification. TLS applies to the tcp
// transport only; the ws transport ignores it on both sides.
type TLS struct {
	Domains  []string `yaml:"domains,omitempty" json:"domains,omitempty"`
	CertFile string   `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string   `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	Insecure bool     `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// DNS configures the resolver.
type DNS struct {
	Strategy    string   `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	NameServers []string `yaml:"name_servers" json:"name_servers"`
}

// RouteRule maps a set of inbound tags to one outbound tag, with DNS
// controlling whether a domain destination is resolved before dialing.
type RouteRule struct {
	DNS      bool     `yaml:"dns,omitempty" json:"dns,omitempty"`
	Inbound  []string `yaml:"inbound" json:"inbound"`
	Outbound string   `yaml:"outbound" json:"outbound"`
}

// Route is the full route table.
type Route struct {
	Rules []RouteRule `yaml:"rules" json:"rules"`
}

// Inbound declares one listening entry: a transport ("tcp" or "ws") and a
// protocol service ("socks" or "vless") layered on top of it.
type Inbound struct {
	Tag       string `yaml:"tag" json:"tag"`
	Transport string `yaml:"transport" json:"transport"`
	Address   string `yaml:"address" json:"address"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"` // ws only
	TLS       *TLS   `yaml:"tls,omitempty" json:"tls,omitempty"`

	Service  string   `yaml:"service" json:"service"`
	Username string   `yaml:"username,omitempty" json:"username,omitempty"` // socks
	Password string   `yaml:"password,omitempty" json:"password,omitempty"` // socks
	Users    []string `yaml:"users,omitempty" json:"users,omitempty"`       // vless, uuid strings
}

// Outbound declares one egress entry: a transport ("tcp", "ws", or "" for
// direct) and a protocol service ("vless" or "direct") layered on top.
type Outbound struct {
	Tag       string   `yaml:"tag" json:"tag"`
	Transport string   `yaml:"transport,omitempty" json:"transport,omitempty"`
	Address   string   `yaml:"address,omitempty" json:"address,omitempty"` // tcp dial target / ws URL
	TLS       *TLS     `yaml:"tls,omitempty" json:"tls,omitempty"`
	Service   string   `yaml:"service" json:"service"`
	User      string   `yaml:"user,omitempty" json:"user,omitempty"` // vless, uuid string
	IdleTimeout Duration `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitempty"`
}

// Config is kapibara's full on-disk configuration.
type Config struct {
	Log      string     `yaml:"log,omitempty" json:"log,omitempty"`
	DNS      DNS        `yaml:"dns" json:"dns"`
	Route    Route      `yaml:"route" json:"route"`
	Inbound  []Inbound  `yaml:"inbound" json:"inbound"`
	Outbound []Outbound `yaml:"outbound" json:"outbound"`
}

// Load reads and parses the config file at path, dispatching on its
// extension (.json vs .yaml/.yml), falling back from YAML to JSON if the
// extension is missing or the YAML parse fails outright.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse parses data as either JSON or YAML depending on ext.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse json: %w", err)
		}
		return &cfg, nil
	default:
		if err := yaml.Unmarshal(data, &cfg); err == nil {
			return &cfg, nil
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse (tried yaml then json): %w", err)
		}
		return &cfg, nil
	}
}
