package tracking

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Configuration keys are caller-controlled and may contain characters that are
// illegal inside a document field path (dots, a leading dollar sign, NUL). The
// store therefore never uses a raw key as a path segment: keys are encoded
// with the URL-safe base64 alphabet, which is reversible and path-safe.

// EncodeConfigKey converts an arbitrary configuration key into a string that
// is safe to use as a map key inside ChannelState.Status.
func EncodeConfigKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeConfigKey reverses EncodeConfigKey.
func DecodeConfigKey(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("tracking: decode configuration key: %w", err)
	}
	return string(raw), nil
}

// channelPath returns the field path of a channel entry, used in $exists
// guards. The channel name is validated as a path segment.
func channelPath(channel string) (string, error) {
	if err := validateSegment(channel); err != nil {
		return "", err
	}
	return "channels." + channel, nil
}

// channelFieldPath returns the path of a direct field of a channel entry,
// e.g. channels.email.first_seen.
func channelFieldPath(channel, field string) (string, error) {
	base, err := channelPath(channel)
	if err != nil {
		return "", err
	}
	if err := validateSegment(field); err != nil {
		return "", err
	}
	return base + "." + field, nil
}

// statusFieldPath returns the path of a per-configuration status field,
// e.g. channels.push.status.<encoded key>.detail. The configuration key is
// encoded here, so callers always pass the raw key.
func statusFieldPath(channel, configKey, field string) (string, error) {
	base, err := channelPath(channel)
	if err != nil {
		return "", err
	}
	if err := validateSegment(field); err != nil {
		return "", err
	}
	return base + ".status." + EncodeConfigKey(configKey) + "." + field, nil
}

// validateSegment rejects strings that cannot serve as a single field path
// segment. Encoded configuration keys always pass by construction.
func validateSegment(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidFieldPath)
	}
	if strings.HasPrefix(s, "$") {
		return fmt.Errorf("%w: segment %q starts with '$'", ErrInvalidFieldPath, s)
	}
	if strings.ContainsAny(s, ".\x00") {
		return fmt.Errorf("%w: segment %q contains a forbidden character", ErrInvalidFieldPath, s)
	}
	return nil
}
