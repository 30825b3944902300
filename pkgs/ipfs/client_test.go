package ipfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAPIURL(t *testing.T) {
	cases := map[string]string{
		"":                          "http://127.0.0.1:5001",
		"ipfs:5001":                 "http://ipfs:5001",
		"/ip4/172.29.0.2/tcp/5001":  "http://172.29.0.2:5001",
		"/dns/ipfs-node/tcp/5001":   "http://ipfs-node:5001",
		"https://ipfs.example.org/": "https://ipfs.example.org/",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeAPIURL(in), in)
	}
}
