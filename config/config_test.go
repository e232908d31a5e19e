package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
dns:
  strategy: ipv4_then_ipv6
  timeout: 5s
  name_servers:
    - 1.1.1.1
route:
  rules:
    - inbound: [in]
      outbound: out
inbound:
  - tag: in
    transport: tcp
    address: 127.0.0.1:0
    service: socks
outbound:
  - tag: out
    service: direct
    idle_timeout: 45s
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, "ipv4_then_ipv6", cfg.DNS.Strategy)
	assert.Equal(t, 5*time.Second, cfg.DNS.Timeout.Duration())
	assert.Equal(t, []string{"1.1.1.1"}, cfg.DNS.NameServers)
	require.Len(t, cfg.Route.Rules, 1)
	assert.Equal(t, "out", cfg.Route.Rules[0].Outbound)
	require.Len(t, cfg.Inbound, 1)
	assert.Equal(t, "socks", cfg.Inbound[0].Service)
	require.Len(t, cfg.Outbound, 1)
	assert.Equal(t, 45*time.Second, cfg.Outbound[0].IdleTimeout.Duration())
}

func TestParseJSONWithoutExtension(t *testing.T) {
	const sampleJSON = `{"dns":{"name_servers":["1.1.1.1"]},"inbound":[],"outbound":[]}`
	cfg, err := Parse([]byte(sampleJSON), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1"}, cfg.DNS.NameServers)
}

func TestBuildWiresDispatchConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	built, err := Build(cfg)
	require.NoError(t, err)

	require.Len(t, built.Inbounds, 1)
	require.Len(t, built.Outbounds, 1)
	assert.Equal(t, "in", built.Inbounds[0].Tag)
	assert.Equal(t, "out", built.Outbounds[0].Tag)
	assert.Equal(t, 45*time.Second, built.Outbounds[0].IdleTimeout)
}

func TestBuildRejectsUnknownService(t *testing.T) {
	cfg := &Config{
		DNS:     DNS{NameServers: []string{"1.1.1.1"}},
		Inbound: []Inbound{{Tag: "in", Transport: "tcp", Address: "127.0.0.1:0", Service: "bogus"}},
	}
	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestBuildWithNoDNSSectionLeavesResolverNil(t *testing.T) {
	cfg := &Config{
		Outbound: []Outbound{{Tag: "out", Service: "direct"}},
	}
	built, err := Build(cfg)
	require.NoError(t, err)
	assert.Nil(t, built.DNS)
}
