package devserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/ssrgate/internal/livereload"
	"golang.org/x/net/html"
)

// TransformTemplate injects the live reload client into raw. The script goes
// before </head>, else before the last </body>, else at the end. Every other
// byte, the placeholder marker included, is left untouched.
func (s *Server) TransformTemplate(ctx context.Context, requestURL, raw string) (string, error) {
	if s.hub == nil {
		return raw, nil
	}

	tag := fmt.Sprintf(`<script src="%s" %s="%s"></script>`,
		livereload.ScriptSrc(), livereload.URLAttribute, html.EscapeString(requestURL))

	at := injectionPoint(raw)
	return raw[:at] + tag + raw[at:], nil
}

// injectionPoint returns the byte offset of the closing head tag, falling
// back to the last closing body tag and then to len(raw).
func injectionPoint(raw string) int {
	z := html.NewTokenizer(strings.NewReader(raw))
	offset := 0
	bodyEnd := -1

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		n := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch string(name) {
			case "head":
				return offset
			case "body":
				bodyEnd = offset
			}
		}
		offset += n
	}

	if bodyEnd >= 0 {
		return bodyEnd
	}
	return len(raw)
}
