// Package network classifies transport failures of remote sources.
package network

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"syscall"
)

// ErrOffline marks an error caused by the source being unreachable.
var ErrOffline = errors.New("source unreachable")

var offlinePatterns = []string{
	"no such host",
	"connection refused",
	"network is unreachable",
	"no route to host",
	"host is down",
	"connection timed out",
	"temporary failure in name resolution",
}

// IsOfflineError checks if an error indicates the source cannot be reached.
func IsOfflineError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if slices.ContainsFunc(offlinePatterns, func(p string) bool {
		return strings.Contains(msg, p)
	}) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" {
			return true
		}
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			return errno == syscall.ECONNREFUSED ||
				errno == syscall.ENETUNREACH ||
				errno == syscall.EHOSTUNREACH
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return IsOfflineError(urlErr.Err)
	}
	return false
}

// Classify wraps offline errors in ErrOffline and returns others unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrOffline) || !IsOfflineError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrOffline, err)
}
