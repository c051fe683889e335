package mcpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/florae/internal/media"
	"github.com/starford/florae/internal/models"
)

const maxImageSize = 20 << 20

// loadImage reads an image from a data URI, an http(s) URL or a local path.
func loadImage(ctx context.Context, source string) (models.Image, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return models.Image{}, fmt.Errorf("image is empty")
	case strings.HasPrefix(source, "data:"):
		return media.DecodeDataURI(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return fetchHTTP(ctx, source)
	default:
		return readFile(source)
	}
}

func readFile(path string) (models.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Image{}, fmt.Errorf("read image: %w", err)
	}
	if info.IsDir() {
		return models.Image{}, fmt.Errorf("read image: %s is a directory", path)
	}
	if info.Size() > maxImageSize {
		return models.Image{}, tooLarge()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Image{}, fmt.Errorf("read image: %w", err)
	}
	return sniff(data, "", path)
}

// fetchHTTP downloads an image with loopback and metadata hosts blocked.
func fetchHTTP(ctx context.Context, rawURL string) (models.Image, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.Image{}, fmt.Errorf("invalid URL: %w", err)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return models.Image{}, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Image{}, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Image{}, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.Image{}, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return models.Image{}, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxImageSize {
		return models.Image{}, tooLarge()
	}
	return sniff(data, resp.Header.Get("Content-Type"), rawURL)
}

func sniff(data []byte, declared, uri string) (models.Image, error) {
	if len(data) == 0 {
		return models.Image{}, fmt.Errorf("image is empty")
	}
	mime := media.Detect(data, declared)
	return models.Image{Data: data, MIMEType: mime, URI: uri}, nil
}

func tooLarge() error {
	return fmt.Errorf("image too large: exceeds %s", humanize.IBytes(maxImageSize))
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}
