package agent

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAllowList(t *testing.T) {
	al := ParseAllowList([]string{"10.0.0.0/8", " 192.168.1.5 ", "not-an-ip", "300.1.1.1/24", "", "2001:db8::/32"}, zap.NewNop())
	assert.Equal(t, 3, al.Len())
	assert.False(t, al.Empty())

	tests := []struct {
		addr string
		want bool
	}{
		{"10.20.30.40", true},
		{"192.168.1.5", true},
		{"192.168.1.6", false},
		{"::ffff:10.1.1.1", true},
		{"2001:db8::1", true},
		{"172.16.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, al.Allows(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestAllowList_EmptyAllowsAll(t *testing.T) {
	for _, al := range []*AllowList{nil, ParseAllowList(nil, zap.NewNop()), ParseAllowList([]string{"junk"}, zap.NewNop())} {
		assert.True(t, al.Empty())
		assert.True(t, al.Allows(netip.MustParseAddr("203.0.113.9")))
	}
}
