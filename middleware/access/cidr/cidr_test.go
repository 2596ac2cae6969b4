package cidr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches_ReferenceCases(t *testing.T) {
	assert := assert.New(t)

	assert.True(Matches("10.244.5.9", "10.244.0.0/16"))
	assert.False(Matches("10.245.0.1", "10.244.0.0/16"))
	assert.True(Matches("127.0.0.1", "127.0.0.1"))
}

func TestMatches_Table(t *testing.T) {
	cases := []struct {
		name      string
		address   string
		rangeText string
		want      bool
	}{
		{"exact miss", "127.0.0.2", "127.0.0.1", false},
		{"slash 32", "192.168.1.10", "192.168.1.10/32", true},
		{"slash 0 matches all", "8.8.8.8", "0.0.0.0/0", true},
		{"base with host bits", "10.1.2.3", "10.1.9.9/16", true},
		{"slash 8", "127.12.7.0", "127.0.0.0/8", true},
		{"slash 8 miss", "128.12.7.0", "127.0.0.0/8", false},
		{"odd prefix", "172.31.255.255", "172.16.0.0/12", true},
		{"odd prefix miss", "172.32.0.0", "172.16.0.0/12", false},
		{"mapped v4", "::ffff:10.0.0.1", "10.0.0.0/8", true},
		{"v6 exact", "::1", "::1", true},
		{"v6 prefix", "fd00::1", "fc00::/7", true},
		{"v6 vs v4 range", "::1", "127.0.0.1", false},
		{"surrounding spaces", " 10.0.0.1 ", " 10.0.0.0/8 ", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(tc.address, tc.rangeText))
		})
	}
}

func TestMatches_MalformedFailsClosed(t *testing.T) {
	bad := [][2]string{
		{"", "10.0.0.0/8"},
		{"10.0.0.1", ""},
		{"10.0.0.1", "10.0.0.0/33"},
		{"10.0.0.1", "10.0.0.0/-1"},
		{"10.0.0.1", "10.0.0.0/x"},
		{"10.0.0.1", "10.0.0/8"},
		{"10.0.0.256", "10.0.0.0/8"},
		{"10.0.0.1.5", "10.0.0.0/8"},
		{"not-an-ip", "0.0.0.0/0"},
		{"10.0.0.1", "garbage"},
		{"10.0.0.+1", "10.0.0.0/8"},
		{"10.0.0.1", "10.0.0.0/8/1"},
	}
	for _, b := range bad {
		assert.False(t, Matches(b[0], b[1]), "%q in %q", b[0], b[1])
	}
}

func TestParseIPv4(t *testing.T) {
	ip, err := ParseIPv4("192.168.0.1")
	require.NoError(t, err)
	assert.Equal(t, uint32(3232235521), ip)

	_, err = ParseIPv4("256.1.1.1")
	assert.Error(t, err)
	_, err = ParseIPv4("1.1.1")
	assert.Error(t, err)
	_, err = ParseIPv4("1.1.1.1/8")
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	base, mask, err := ParseRange("10.244.7.1/16")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xffff0000), mask)
	assert.Equal(t, uint32(10<<24|244<<16), base)

	_, mask, err = ParseRange("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, ^uint32(0), mask)

	_, mask, err = ParseRange("0.0.0.0/0")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), mask)
}

func TestValid(t *testing.T) {
	assert := assert.New(t)

	assert.True(Valid("10.0.0.1"))
	assert.True(Valid("10.0.0.0/8"))
	assert.True(Valid("::1"))
	assert.True(Valid("fc00::/7"))
	assert.False(Valid("10.0.0.0/40"))
	assert.False(Valid("example.com"))
	assert.False(Valid(""))
}

func TestValidAddress(t *testing.T) {
	assert := assert.New(t)

	assert.True(ValidAddress("10.0.0.1"))
	assert.True(ValidAddress(" 2001:db8::1 "))
	assert.False(ValidAddress("10.0.0.0/8"))
	assert.False(ValidAddress("2001:db8::/32"))
	assert.False(ValidAddress(""))
	assert.False(ValidAddress("localhost"))
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"10.244.5.0/24", "10.244.0.0/16", true},
		{"10.0.0.0/8", "10.244.0.0/16", true},
		{"10.244.0.0/16", "10.244.0.0/16", true},
		{"10.244.5.9", "10.244.0.0/16", true},
		{"10.244.5.9", "10.244.5.9", true},
		{"10.245.0.0/16", "10.244.0.0/16", false},
		{"192.168.1.0/24", "10.0.0.0/8", false},
		{"::ffff:10.244.1.1", "10.244.0.0/16", true},
		{"2001:db8::/32", "2001:db8:1::/48", true},
		{"2001:db8::/32", "2001:db9::/32", false},
		{"::1", "::1", true},
		{"2001:db8::/32", "10.0.0.0/8", false},
		{"bogus", "10.0.0.0/8", false},
		{"", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Overlaps(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
		assert.Equal(t, tc.want, Overlaps(tc.b, tc.a), "%s vs %s", tc.b, tc.a)
	}
}
