package assets

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Dir is the output subtree holding localized assets.
const Dir = "assets"

// ErrUnmappable is returned for URLs that have no usable path component.
var ErrUnmappable = errors.New("asset URL cannot be mapped to a local path")

var querySeparators = strings.NewReplacer("?", "_", "=", "_", "&", "_", "/", "_")

// LocalPath derives the output-relative path for a remote asset URL. The
// remote path is mirrored under assets/; a query string is folded into the
// file stem so that variants of the same resource do not collide:
//
//	https://cdn.example/images/x.png            -> assets/images/x.png
//	https://cdn.example/images/x.png?w=512&q=80 -> assets/images/x_w_512_q_80.png
func LocalPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnmappable, err)
	}

	p := strings.TrimPrefix(u.Path, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnmappable, rawURL)
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the assets directory", ErrUnmappable, rawURL)
	}

	if u.RawQuery != "" {
		ext := path.Ext(cleaned)
		stem := strings.TrimSuffix(cleaned, ext)
		cleaned = stem + "_" + querySeparators.Replace(u.RawQuery) + ext
	}

	return path.Join(Dir, norm.NFC.String(cleaned)), nil
}
