package util

import "strings"

// ToUserError maps an internal error message to the single human-readable
// line shown to the requesting user.
func ToUserError(message string) string {
	msg := strings.ToLower(message)

	if strings.Contains(msg, "cancelled") || strings.Contains(msg, "canceled") || strings.Contains(msg, "context canceled") {
		return "Download cancelled"
	}
	if strings.Contains(msg, "unsupported url") || strings.Contains(msg, "api.link.unsupported") {
		return "This link type isn't supported"
	}
	if strings.Contains(msg, "too many") && strings.Contains(msg, "download") {
		return "You have too many downloads running, wait for one to finish"
	}
	if strings.Contains(msg, "auth required") || strings.Contains(msg, "login") || strings.Contains(msg, "sign in to confirm") || strings.Contains(msg, "cookies") {
		return "This platform requires a login for that content"
	}
	if strings.Contains(msg, "content.video.unavailable") || strings.Contains(msg, "video unavailable") || strings.Contains(msg, "private video") || strings.Contains(msg, "not found") || strings.Contains(msg, "http error 404") {
		return "Content not found, it may have been deleted or made private"
	}
	if strings.Contains(msg, "content.video.age") || strings.Contains(msg, "age-restricted") || strings.Contains(msg, "age restricted") {
		return "This content is age-restricted"
	}
	if strings.Contains(msg, "api.rate_limited") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "http error 429") {
		return "Rate limited, try again in a minute"
	}
	if strings.Contains(msg, "geo restricted") || strings.Contains(msg, "geo-restricted") || strings.Contains(msg, "not available in your country") {
		return "This content isn't available in the server's region"
	}
	if strings.Contains(msg, "http error 403") || strings.Contains(msg, "403 forbidden") {
		return "Access denied, the site is blocking downloads"
	}
	if strings.Contains(msg, "all providers failed") {
		return "Download failed on every available backend, try again later"
	}
	if strings.Contains(msg, "artifact too small") || strings.Contains(msg, "validation failed") {
		return "The downloaded file looked broken, try again"
	}
	if strings.Contains(msg, "etimedout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "Connection timed out, try again"
	}
	if strings.Contains(msg, "econnreset") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") {
		return "Connection dropped, try again"
	}
	if strings.Contains(msg, "no such host") || strings.Contains(msg, "dns") {
		return "Couldn't reach the server, try again"
	}
	if strings.Contains(msg, "file too large") || strings.Contains(msg, "too_long") {
		return "This file is too large to send"
	}
	return "Download failed"
}
