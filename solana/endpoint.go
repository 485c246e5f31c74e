// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"fmt"
	"net/url"
	"os"
)

// WebsocketURL derives the pubsub endpoint for an rpc endpoint by switching
// http to ws and https to wss.
func WebsocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("could not parse rpc endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported rpc endpoint scheme %q: %w", u.Scheme, os.ErrInvalid)
	}
	return u.String(), nil
}
