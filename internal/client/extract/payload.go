package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PayloadTag prefixes every probe result.
const PayloadTag = "TGX1"

var ErrForeignPayload = errors.New("not an extraction payload")

// Payload is a decoded probe result.
type Payload struct {
	Source   Source
	Identity Identity
}

// EncodePayload renders p in the wire form produced by the probe scripts:
// TGX1|<source>|<token>|<device>|<email>, fields percent-encoded.
func EncodePayload(p Payload) string {
	return strings.Join([]string{
		PayloadTag,
		p.Source.String(),
		url.PathEscape(p.Identity.AuthToken),
		url.PathEscape(p.Identity.DeviceID),
		url.PathEscape(p.Identity.Email),
	}, "|")
}

func ParsePayload(s string) (Payload, error) {
	parts := strings.Split(strings.TrimSpace(s), "|")
	if len(parts) != 5 || parts[0] != PayloadTag {
		return Payload{}, ErrForeignPayload
	}

	src, ok := ParseSource(parts[1])
	if !ok {
		return Payload{}, fmt.Errorf("%w: unknown source %q", ErrForeignPayload, parts[1])
	}

	fields := make([]string, 3)
	for i, raw := range parts[2:] {
		v, err := url.PathUnescape(raw)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrForeignPayload, err)
		}
		fields[i] = v
	}

	return Payload{
		Source:   src,
		Identity: Identity{AuthToken: fields[0], DeviceID: fields[1], Email: fields[2]},
	}, nil
}
