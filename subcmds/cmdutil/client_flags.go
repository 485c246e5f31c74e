// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/bvk/marketgate/api"
)

// ClientFlags locate a running gateway.
type ClientFlags struct {
	port        int
	Host        string
	APIPath     string
	HTTPTimeout time.Duration
}

func (cf *ClientFlags) SetFlags(fset *flag.FlagSet) {
	fset.IntVar(&cf.port, "connect-port", 0, "TCP port number for the gateway (default=3332 or PORT value)")
	fset.StringVar(&cf.Host, "connect-host", "127.0.0.1", "Hostname or IP address for the gateway")
	fset.StringVar(&cf.APIPath, "api-path", "/api", "base path to the api handler")
	fset.DurationVar(&cf.HTTPTimeout, "http-timeout", 2*time.Minute, "http client timeout")
}

func (cf *ClientFlags) Port() int {
	if cf.port != 0 {
		return cf.port
	}
	if v := os.Getenv("PORT"); len(v) != 0 {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			return int(port)
		}
	}
	return 3332
}

func (cf *ClientFlags) AddressURL() *url.URL {
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cf.Host, strconv.Itoa(cf.Port())),
		Path:   cf.APIPath,
	}
}

func (cf *ClientFlags) HttpClient() *http.Client {
	return &http.Client{
		Timeout: cf.HTTPTimeout,
	}
}

// Post sends a JSON request to an api path of the gateway and decodes the
// JSON response. Error responses are reported with their message.
func Post[RESP, REQ any](ctx context.Context, cf *ClientFlags, subpath string, req *REQ) (*RESP, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	addrURL := cf.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, subpath)
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, addrURL.String(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	r.Header.Set("content-type", "application/json")
	return do[RESP](cf, r)
}

// Get fetches an api path of the gateway with optional query parameters.
func Get[RESP any](ctx context.Context, cf *ClientFlags, subpath string, values url.Values) (*RESP, error) {
	addrURL := cf.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, subpath)
	addrURL.RawQuery = values.Encode()
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, addrURL.String(), nil)
	if err != nil {
		return nil, err
	}
	return do[RESP](cf, r)
}

func do[RESP any](cf *ClientFlags, r *http.Request) (*RESP, error) {
	client := cf.HttpClient()
	resp, err := client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var eresp api.ErrorResponse
		if err := json.Unmarshal(data, &eresp); err == nil && eresp.Error != "" {
			return nil, fmt.Errorf("http status code %d: %s", resp.StatusCode, eresp.Error)
		}
		return nil, fmt.Errorf("http status code %d: %s", resp.StatusCode, data)
	}
	response := new(RESP)
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return nil, err
	}
	return response, nil
}
