// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"flag"
)

// ServerFlags override the listen address from the environment when set.
type ServerFlags struct {
	Port int
	IP   string
}

func (sf *ServerFlags) SetFlags(fset *flag.FlagSet) {
	fset.IntVar(&sf.Port, "listen-port", 0, "TCP port number for the gateway (default is PORT environment variable or 3332)")
	fset.StringVar(&sf.IP, "listen-ip", "", "TCP ip address for the gateway (default is LISTEN_IP environment variable or 127.0.0.1)")
}
