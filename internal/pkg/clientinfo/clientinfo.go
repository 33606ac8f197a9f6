// Package clientinfo classifies a raw User-Agent string into the device
// class, browser, and operating system labels used on session rows.
package clientinfo

import (
	"strings"

	"github.com/mileusna/useragent"
)

// Constants for unknown or default values
const (
	UnknownDevice  = "__unknown_device__"
	UnknownBrowser = "__unknown_browser__"
	UnknownOS      = "__unknown_os__"
)

// ClientInfo holds the normalized classification of a User-Agent string.
type ClientInfo struct {
	Device  string
	Browser string
	OS      string
	Bot     bool
}

// Parse classifies the given User-Agent string.
func Parse(userAgentString string) ClientInfo {
	if userAgentString == "" {
		return ClientInfo{Device: UnknownDevice, Browser: UnknownBrowser, OS: UnknownOS}
	}

	ua := useragent.Parse(userAgentString)

	return ClientInfo{
		Device:  deviceClass(ua),
		Browser: normalizeBrowser(ua),
		OS:      NormalizeOperatingSystem(ua.OS),
		Bot:     ua.Bot,
	}
}

func deviceClass(ua useragent.UserAgent) string {
	switch {
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return UnknownDevice
	}
}

// normalizeBrowser folds mobile browser variants into their desktop name so
// device-grouped metrics don't split one browser across two labels.
func normalizeBrowser(ua useragent.UserAgent) string {
	if ua.Bot || ua.Name == "" {
		return UnknownBrowser
	}

	browserName := strings.ToLower(ua.Name)

	switch browserName {
	case "internet explorer":
		return "ie"
	case "mobile safari":
		return "safari"
	case "chrome mobile", "chrome mobile webview":
		return "chrome"
	case "firefox mobile":
		return "firefox"
	case "opera mini", "opera mobile":
		return "opera"
	case "edge mobile":
		return "edge"
	default:
		return browserName
	}
}

// NormalizeOperatingSystem normalizes operating system names to standardize them
func NormalizeOperatingSystem(os string) string {
	if os == "" {
		return UnknownOS
	}

	osLower := strings.ToLower(os)

	if strings.Contains(osLower, "mac") || strings.Contains(osLower, "darwin") {
		return "MacOS"
	}

	if strings.Contains(osLower, "linux") || strings.Contains(osLower, "gnu/linux") {
		return "Linux"
	}

	if strings.Contains(osLower, "ios") || strings.Contains(osLower, "iphone os") {
		return "iOS"
	}

	if strings.Contains(osLower, "android") {
		return "Android"
	}

	if strings.Contains(osLower, "windows") {
		return "Windows"
	}

	// For other operating systems, capitalize the first letter and return as is
	return strings.ToUpper(os[:1]) + strings.ToLower(os[1:])
}
