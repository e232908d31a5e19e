package dispatch

// RouteRuleOption configures one route rule: every inbound tag listed is
// sent to OutboundTag, with DNS controlling whether a domain destination is
// resolved before dialing. A tag may appear in at most one rule.
type RouteRuleOption struct {
	InboundTags []string
	OutboundTag string
	DNS         bool
}

// RouteRule is the bound rule a RouteTable hands back from Lookup.
type RouteRule struct {
	OutboundTag string
	DNS         bool
}

// RouteTable maps inbound tags to outbound tags. It is built once during
// Dispatcher.Init and is read-only afterward, so Lookup needs no locking.
// Building it only checks inbound-tag uniqueness: whether OutboundTag names
// a real outbound isn't known until Dispatcher.Start, since referential
// integrity across the whole config is validated there (see dispatch.go).
type RouteTable struct {
	rules map[string]RouteRule
}

func newRouteTable(opts []RouteRuleOption) (*RouteTable, error) {
	rules := make(map[string]RouteRule)
	for _, opt := range opts {
		for _, tag := range opt.InboundTags {
			if _, exists := rules[tag]; exists {
				return nil, errDuplicateTag(tag)
			}
			rules[tag] = RouteRule{OutboundTag: opt.OutboundTag, DNS: opt.DNS}
		}
	}
	return &RouteTable{rules: rules}, nil
}

// Lookup returns the rule bound to inboundTag, if any.
func (t *RouteTable) Lookup(inboundTag string) (RouteRule, bool) {
	rule, ok := t.rules[inboundTag]
	return rule, ok
}

// OutboundTags returns the set of distinct outbound tags named by the
// table's rules, for Dispatcher.Start's referential-integrity check.
func (t *RouteTable) OutboundTags() []string {
	seen := make(map[string]struct{}, len(t.rules))
	tags := make([]string, 0, len(t.rules))
	for _, rule := range t.rules {
		if _, ok := seen[rule.OutboundTag]; ok {
			continue
		}
		seen[rule.OutboundTag] = struct{}{}
		tags = append(tags, rule.OutboundTag)
	}
	return tags
}
