package collections

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gamify-app/gamify/internal/shared"
	"github.com/google/uuid"
)

const (
	mediaBucket   = "media"
	maxAudioBytes = 5 << 20
)

// UploadTrackAudio stores an audio file in the media bucket and returns its
// public URL, suitable for a track's audio_url.
func (m *Manager) UploadTrackAudio(ctx context.Context, filename string, data []byte) (string, error) {
	user := m.sessions.CurrentUser()
	if user == nil {
		return "", shared.ErrNotAuthenticated
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty audio file", shared.ErrInvalidInput)
	}
	if len(data) > maxAudioBytes {
		return "", fmt.Errorf("%w: audio is limited to %d bytes", shared.ErrFileTooLarge, maxAudioBytes)
	}

	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "mp3"
	}
	objectPath := fmt.Sprintf("tracks/%s-%s.%s", user.ID, uuid.NewString()[:8], ext)

	url, err := m.client.UploadBlob(ctx, mediaBucket, objectPath, data, audioContentType(ext))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	return url, nil
}

func audioContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "m4a":
		return "audio/mp4"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
