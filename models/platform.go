package models

import (
	"fmt"
	"strings"
)

type Platform string

const (
	PlatformDevTo     Platform = "DEVTO"
	PlatformHashnode  Platform = "HASHNODE"
	PlatformGhost     Platform = "GHOST"
	PlatformWordPress Platform = "WORDPRESS"
	PlatformWix       Platform = "WIX"
)

// AllPlatforms lists every supported remote platform in display order.
var AllPlatforms = []Platform{
	PlatformDevTo,
	PlatformHashnode,
	PlatformGhost,
	PlatformWordPress,
	PlatformWix,
}

// ParsePlatform accepts the canonical name in any case ("devto", "Ghost").
func ParsePlatform(value string) (Platform, error) {
	candidate := Platform(strings.ToUpper(strings.TrimSpace(value)))
	for _, p := range AllPlatforms {
		if p == candidate {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", value)
}

// ParsePlatforms parses a list while keeping caller order and dropping duplicates.
func ParsePlatforms(values []string) ([]Platform, error) {
	seen := make(map[Platform]struct{}, len(values))
	result := make([]Platform, 0, len(values))
	for _, v := range values {
		p, err := ParsePlatform(v)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result, nil
}
