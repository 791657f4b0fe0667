package dedupe

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidVideo is returned for links that are not absolute http(s) URLs.
var ErrInvalidVideo = errors.New("invalid video url")

// NormalizeVideo canonicalizes a video link so that trivially different
// spellings of the same video dedupe to one key. YouTube links keep only
// the video id.
func NormalizeVideo(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", ErrInvalidVideo
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidVideo
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/watch?v=" + id, nil
		}
	case "youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "https://www.youtube.com/watch?v=" + id, nil
		}
	}

	out := url.URL{Scheme: "https", Host: host, Path: strings.TrimRight(u.Path, "/"), RawQuery: u.RawQuery}
	return out.String(), nil
}
