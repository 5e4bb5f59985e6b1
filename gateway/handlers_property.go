package gateway

import (
	"io"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/authn"
)

type propertyPutRequest struct {
	Value string `json:"value"`
}

// handleProperty serves
// /v1/property/{ns}/{account}/{user}/{path...}/{key}, the last segment
// always the property key and everything before it the content path.
//
//	GET    list all properties on path (key segment omitted)
//	PUT    set one property
//	DELETE remove one property
func (s *Server) handleProperty(ctx *fasthttp.RequestCtx, rest []string) {
	ref, tail, ok := containerRefFromParts(rest)
	if !ok || len(tail) == 0 {
		writeErr(ctx, errBadPath("property needs ns/account/user/path"))
		return
	}

	method := string(ctx.Method())
	if method == fasthttp.MethodGet {
		path := strings.Join(tail, "/")
		if _, err := s.authorize(ctx, ref, authn.AccessRead); err != nil {
			writeErr(ctx, err)
			return
		}
		props, err := s.Meta2.PropGet(ref, path)
		if err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, props)
		return
	}

	if len(tail) < 2 {
		writeErr(ctx, errBadPath("property key missing"))
		return
	}
	path := strings.Join(tail[:len(tail)-1], "/")
	key := tail[len(tail)-1]

	switch method {
	case fasthttp.MethodPut:
		if _, err := s.authorize(ctx, ref, authn.AccessWrite); err != nil {
			writeErr(ctx, err)
			return
		}
		body, err := io.ReadAll(bodyReader(ctx))
		if err != nil {
			writeErr(ctx, errBadPath(err.Error()))
			return
		}
		var req propertyPutRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeErr(ctx, errBadPath(err.Error()))
			return
		}
		if err := s.Meta2.PropSet(ref, path, key, req.Value); err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})

	case fasthttp.MethodDelete:
		if _, err := s.authorize(ctx, ref, authn.AccessDelete); err != nil {
			writeErr(ctx, err)
			return
		}
		if err := s.Meta2.PropDel(ref, path, key); err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})

	default:
		writeErr(ctx, errBadPath("unsupported property method"))
	}
}
