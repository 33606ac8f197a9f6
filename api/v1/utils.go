package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
	"log/slog"
)

func getClientIP(c *fiber.Ctx) string {
	if ip := selectPreferredIP(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	for _, header := range []string{
		"X-Real-IP",
		"CF-Connecting-IP",
		"True-Client-IP",
		"X-Client-IP",
	} {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	remoteAddr := c.Context().RemoteAddr().String()
	if remoteAddr != "" {
		host, _, err := net.SplitHostPort(remoteAddr)
		if err == nil && host != "" {
			parsedIP := net.ParseIP(host)
			if parsedIP != nil && !isPrivateIP(parsedIP) {
				return host
			}
		} else {
			parsedIP := net.ParseIP(remoteAddr)
			if parsedIP != nil && !isPrivateIP(parsedIP) {
				return remoteAddr
			}
		}
	}

	ip := c.IP()
	if ip != "" && ip != "0.0.0.0" && ip != "::" {
		parsedIP := net.ParseIP(strings.TrimSpace(ip))
		if parsedIP != nil && !isPrivateIP(parsedIP) {
			return ip
		}
	}

	slog.Default().Info("Fallback to loopback IP for request",
		slog.String("path", c.Path()))
	return "127.0.0.1"
}

// isPrivateIP checks RFC 1918, RFC 4193 and RFC 4291 ranges plus loopback.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}

	privateIPBlocks := []*net.IPNet{
		parseCIDR("10.0.0.0/8"),
		parseCIDR("172.16.0.0/12"),
		parseCIDR("192.168.0.0/16"),
		parseCIDR("fc00::/7"),
		parseCIDR("fe80::/10"),
		parseCIDR("::1/128"),
		parseCIDR("127.0.0.0/8"),
	}

	for _, block := range privateIPBlocks {
		candidate := ip

		switch len(block.IP) {
		case net.IPv4len:
			if ip4 := ip.To4(); ip4 != nil {
				candidate = ip4
			} else {
				continue
			}
		case net.IPv6len:
			candidate = ip.To16()
			if candidate == nil {
				continue
			}
		}

		if block.Contains(candidate) {
			return true
		}
	}
	return false
}

func parseCIDR(s string) *net.IPNet {
	_, block, _ := net.ParseCIDR(s)
	return block
}

func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || isPrivateIP(parsed) {
			continue
		}

		if parsed.To4() != nil {
			return clean
		}

		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

func normalizeIP(raw string) (string, net.IP) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"")
	if clean == "" {
		return "", nil
	}

	// Drop any zone identifier (fe80::1%eth0)
	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		addr := addrPort.Addr()
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	trimmed := clean
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
	}

	if addr, err := netip.ParseAddr(trimmed); err == nil {
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

func parseForwardedHeader(header string) []string {
	var candidates []string

	entries := strings.Split(header, ",")
	for _, entry := range entries {
		parts := strings.Split(entry, ";")
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				ip := strings.TrimPrefix(part, "for=")
				candidates = append(candidates, ip)
			}
		}
	}

	return candidates
}

// generateETag creates a strong ETag from content using SHA-256.
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
