package service

import (
	"strings"
	"unicode/utf8"
)

const maxUserAgent = 500

// Device types recorded on sessions.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceWeb     = "web"
	DeviceUnknown = "unknown"
)

// ClientInfo describes the client that opened a session.
type ClientInfo struct {
	IP         string
	UserAgent  string
	DeviceName string
}

// ClassifyDevice derives a coarse device type from a User-Agent header.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return DeviceMobile
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		return DeviceTablet
	case strings.TrimSpace(ua) != "":
		return DeviceWeb
	default:
		return DeviceUnknown
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
