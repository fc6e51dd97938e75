// Package media maps encoder output files to their delivery metadata:
// MIME type, cache policy and remote object key.
package media

import (
	"path"
	"strings"
)

// Rendition identifies one of the two parallel output streams of a session.
type Rendition string

const (
	// RenditionLive is the bounded sliding-window stream for real-time playback.
	RenditionLive Rendition = "live"
	// RenditionArchive is the unbounded stream retaining the full session.
	RenditionArchive Rendition = "archive"
)

// Cache policies. Playlists are rewritten in place as the window advances and
// must never be cached; segments are immutable once finalized.
const (
	CacheNoStore   = "no-cache, no-store, must-revalidate"
	CacheImmutable = "public, max-age=31536000, immutable"
)

// Classify maps an output filename to its content type and cache policy.
func Classify(filename string) (contentType, cacheControl string) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl", CacheNoStore
	case ".ts":
		return "video/MP2T", CacheImmutable
	case ".m4s":
		return "video/iso.segment", CacheImmutable
	case ".mp4":
		return "video/mp4", CacheImmutable
	default:
		return "application/octet-stream", CacheImmutable
	}
}

// RemoteKey derives the object storage key for an output file.
// Layout: {sessionID}/{rendition}/{filename}
func RemoteKey(sessionID string, rendition Rendition, filename string) string {
	return sessionID + "/" + string(rendition) + "/" + filename
}
