package main

import (
	"net"
	"strings"

	"github.com/STJr/SRB2-sub004/internal/httpapi"
)

// serviceEndpoints are the addresses logged at startup for operators and
// replay viewers. Inspect is empty when gRPC inspection is disabled.
type serviceEndpoints struct {
	HTTP    string
	Watch   string
	Inspect string
}

func endpointsFor(httpAddr, grpcAddr string, tlsEnabled bool) serviceEndpoints {
	scheme, feed := "http", "ws"
	if tlsEnabled {
		scheme, feed = "https", "wss"
	}
	host := reachableHostPort(httpAddr)
	e := serviceEndpoints{
		HTTP:  scheme + "://" + host,
		Watch: feed + "://" + host + httpapi.WatchPath,
	}
	if strings.TrimSpace(grpcAddr) != "" {
		e.Inspect = reachableHostPort(grpcAddr)
	}
	return e
}

// reachableHostPort turns a listen address into one a local client can dial.
// Wildcard and missing hosts become localhost.
func reachableHostPort(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, ":") {
		address = "localhost" + address
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		if address == "" {
			return "localhost"
		}
		return address
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
