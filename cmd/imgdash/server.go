package main

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	httpServerShutdownTimeout = 5 * time.Second
	httpReadHeaderTimeout     = 5 * time.Second
)

// listen binds host:port. Port 0 picks a free port; the bound port is
// returned either way.
func listen(host string, port int) (net.Listener, int, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, 0, err
	}
	tcpAddress, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return nil, 0, fmt.Errorf("unexpected listener address: %T", listener.Addr())
	}
	return listener, tcpAddress.Port, nil
}

func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}
}
