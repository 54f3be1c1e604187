package agent

import (
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// AllowList restricts which client addresses may query the agent. An empty
// list allows everyone.
type AllowList struct {
	prefixes []netip.Prefix
}

// ParseAllowList parses IP addresses and CIDR blocks. Invalid entries are
// logged and skipped.
func ParseAllowList(entries []string, logger *zap.Logger) *AllowList {
	al := &AllowList{}
	for _, raw := range entries {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				logger.Warn("ignoring invalid allowed client network", zap.String("entry", raw), zap.Error(err))
				continue
			}
			al.prefixes = append(al.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			logger.Warn("ignoring invalid allowed client address", zap.String("entry", raw), zap.Error(err))
			continue
		}
		a = a.Unmap()
		al.prefixes = append(al.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return al
}

// Empty reports whether no restriction is configured.
func (al *AllowList) Empty() bool { return al == nil || len(al.prefixes) == 0 }

// Allows reports whether addr may query the agent.
func (al *AllowList) Allows(addr netip.Addr) bool {
	if al.Empty() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range al.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of accepted entries.
func (al *AllowList) Len() int {
	if al == nil {
		return 0
	}
	return len(al.prefixes)
}
