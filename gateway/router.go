package gateway

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
)

// dispatch parses "/v1/<segment>/..." and routes to the matching
// handler, returning a route label for metrics. Unknown paths answer 404
// directly rather than falling through to a catch-all, matching the
// gateway's closed request surface.
func (s *Server) dispatch(ctx *fasthttp.RequestCtx) string {
	path := strings.TrimPrefix(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != cmn.Version {
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "unknown API version"})
		return "unknown"
	}
	segment, rest := parts[1], parts[2:]
	switch segment {
	case cmn.Health:
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		return cmn.Health
	case cmn.Conscience:
		s.handleConscience(ctx, rest)
		return cmn.Conscience
	case cmn.Reference:
		s.handleReference(ctx, rest)
		return cmn.Reference
	case cmn.Container:
		s.handleContainer(ctx, rest)
		return cmn.Container
	case cmn.Content:
		s.handleContent(ctx, rest)
		return cmn.Content
	case cmn.Property:
		s.handleProperty(ctx, rest)
		return cmn.Property
	default:
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{"error": "unknown route"})
		return "unknown"
	}
}

// containerRefFromParts rebuilds "ns/account/user" from three path
// segments, the same ContainerRef shape oiourl.URL.ContainerRef produces.
func containerRefFromParts(parts []string) (ref string, rest []string, ok bool) {
	if len(parts) < 3 {
		return "", nil, false
	}
	return strings.Join(parts[:3], "/"), parts[3:], true
}
