// Package discovery advertises a relay on the local network over mDNS and
// finds one from a board participant.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_syncboard._tcp"

var ErrNoRelay = errors.New("no relay found on the local network")

// Advertise publishes a relay listening on port. Shut the returned server
// down to withdraw it.
func Advertise(name string, port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if name == "" {
		name = host
	}

	service, err := mdns.NewMDNSService(
		name,
		ServiceType,
		"",  // .local
		"",  // OS hostname
		port,
		nil, // detect IPs
		[]string{"SyncBoard relay", "path=/sessions"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	return server, nil
}

// Browse queries the local network for up to timeout and returns the base
// URL of every relay that answered, in answer order.
func Browse(timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []string)

	go func() {
		var found []string
		seen := make(map[string]bool)
		for e := range entries {
			url, ok := entryURL(e)
			if !ok || seen[url] {
				continue
			}
			seen[url] = true
			found = append(found, url)
		}
		done <- found
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	found := <-done

	if err != nil {
		return nil, fmt.Errorf("mDNS query failed: %w", err)
	}
	return found, nil
}

// BrowseFirst returns the first relay found within timeout.
func BrowseFirst(timeout time.Duration) (string, error) {
	found, err := Browse(timeout)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", ErrNoRelay
	}
	return found[0], nil
}

func entryURL(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("http://%s:%d", e.AddrV4.String(), e.Port), true
}
