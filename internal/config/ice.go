package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

// Servers validates the configured URLs and groups them the way browsers
// expect them in RTCConfiguration.iceServers.
func (i ICE) Servers() ([]webrtc.ICEServer, error) {
	var errs []error

	stunURLs := make([]string, 0, len(i.STUNURLs))
	for _, raw := range i.STUNURLs {
		u, err := parseURI(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if u.Scheme != stun.SchemeTypeSTUN && u.Scheme != stun.SchemeTypeSTUNS {
			errs = append(errs, fmt.Errorf("ice.stun_urls: %q is not a stun: URL", raw))
			continue
		}
		stunURLs = append(stunURLs, strings.TrimSpace(raw))
	}

	turnURLs := make([]string, 0, len(i.TURNURLs))
	for _, raw := range i.TURNURLs {
		u, err := parseURI(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if u.Scheme != stun.SchemeTypeTURN && u.Scheme != stun.SchemeTypeTURNS {
			errs = append(errs, fmt.Errorf("ice.turn_urls: %q is not a turn: URL", raw))
			continue
		}
		turnURLs = append(turnURLs, strings.TrimSpace(raw))
	}
	if len(turnURLs) > 0 && (i.TURNUsername == "" || i.TURNCredential == "") {
		errs = append(errs, errors.New("ice: turn_urls need turn_username and turn_credential"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var servers []webrtc.ICEServer
	if len(stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunURLs})
	}
	if len(turnURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           turnURLs,
			Username:       i.TURNUsername,
			Credential:     i.TURNCredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers, nil
}

func parseURI(raw string) (*stun.URI, error) {
	u, err := stun.ParseURI(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("ice: invalid URL %q: %w", raw, err)
	}
	return u, nil
}
