// Package ipfs stores and retrieves media through a Kubo node.
package ipfs

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	files "github.com/ipfs/boxo/files"
	"github.com/ipfs/boxo/path"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/kubo/core/coreiface/options"
	ipfsApi "github.com/ipfs/kubo/client/rpc"
	log "github.com/sirupsen/logrus"
)

// Client wraps the IPFS kubo client
type Client struct {
	api *ipfsApi.HttpApi
}

// NormalizeAPIURL accepts a multiaddr, host:port or URL and returns an http URL
func NormalizeAPIURL(apiURL string) string {
	if apiURL == "" {
		apiURL = "127.0.0.1:5001"
	}

	if strings.HasPrefix(apiURL, "/ip4/") || strings.HasPrefix(apiURL, "/dns/") {
		// /ip4/172.29.0.2/tcp/5001 -> http://172.29.0.2:5001
		parts := strings.Split(apiURL, "/")
		if len(parts) >= 5 {
			return fmt.Sprintf("http://%s:%s", parts[2], parts[4])
		}
	} else if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		return "http://" + apiURL
	}
	return apiURL
}

// NewClient creates a new IPFS client
func NewClient(apiURL string) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: true,
		},
	}

	api, err := ipfsApi.NewURLApiWithClient(NormalizeAPIURL(apiURL), httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create IPFS client: %w", err)
	}

	return &Client{api: api}, nil
}

// Add stores data as a pinned CIDv1 file and returns the CID
func (c *Client) Add(ctx context.Context, data []byte) (string, error) {
	p, err := c.api.Unixfs().Add(ctx, files.NewBytesFile(data),
		options.Unixfs.CidVersion(1),
		options.Unixfs.Chunker("size-262144"),
		options.Unixfs.Pin(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to add to IPFS: %w", err)
	}

	cidStr := p.RootCid().String()
	log.Debugf("Stored %d bytes in IPFS: %s", len(data), cidStr)
	return cidStr, nil
}

// Retrieve fetches the file stored under cidStr
func (c *Client) Retrieve(ctx context.Context, cidStr string) ([]byte, error) {
	parsedCID, err := cid.Parse(cidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid CID %s: %w", cidStr, err)
	}

	node, err := c.api.Unixfs().Get(ctx, path.FromCid(parsedCID))
	if err != nil {
		return nil, fmt.Errorf("failed to get from IPFS: %w", err)
	}

	file := files.ToFile(node)
	if file == nil {
		node.Close()
		return nil, fmt.Errorf("CID %s is not a file", cidStr)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return buf.Bytes(), nil
}

// IsAvailable checks if IPFS node is accessible
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.api.Key().Self(ctx)
	return err == nil
}
