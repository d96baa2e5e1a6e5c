package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// TrackingPixelURL returns the open-tracking pixel URL for a sent message.
func TrackingPixelURL(baseURL, messageID string) string {
	return fmt.Sprintf("%s/track/open/%s", baseURL, messageID)
}

// ClickTrackURL wraps a link so clicks register before redirecting.
func ClickTrackURL(baseURL, messageID, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s?url=%s", baseURL, messageID, url.QueryEscape(originalURL))
}

// InjectTracking rewrites links for click tracking and appends the open pixel
// to an outgoing HTML email body.
func InjectTracking(htmlContent, baseURL, messageID string) string {
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, TrackingPixelURL(baseURL, messageID))
	return injectClickTracking(htmlContent, baseURL, messageID) + pixel
}

func injectClickTracking(html, baseURL, messageID string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		trackedURL := ClickTrackURL(baseURL, messageID, html[startIdx:endIdx])
		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}
