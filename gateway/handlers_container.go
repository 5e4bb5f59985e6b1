package gateway

import (
	"io"

	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/authn"
	"github.com/GuillaumeDelaporte/oio-sds/meta2"
)

type containerPutRequest struct {
	MaxVersions *int64 `json:"max_versions"`
}

// handleContainer serves:
//
//	GET /v1/container/{ns}/{account}/{user}   container info
//	PUT /v1/container/{ns}/{account}/{user}   set versioning policy
func (s *Server) handleContainer(ctx *fasthttp.RequestCtx, rest []string) {
	ref, _, ok := containerRefFromParts(rest)
	if !ok {
		writeErr(ctx, errBadPath("container needs ns/account/user"))
		return
	}

	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		if _, err := s.authorize(ctx, ref, authn.AccessRead); err != nil {
			writeErr(ctx, err)
			return
		}
		info, err := s.Meta2.ContainerInfo(ref)
		if err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, info)

	case fasthttp.MethodPut:
		if _, err := s.authorize(ctx, ref, authn.AccessAdmin); err != nil {
			writeErr(ctx, err)
			return
		}
		body, err := io.ReadAll(bodyReader(ctx))
		if err != nil {
			writeErr(ctx, errBadPath(err.Error()))
			return
		}
		var req containerPutRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeErr(ctx, errBadPath(err.Error()))
				return
			}
		}
		if req.MaxVersions != nil {
			if err := s.Meta2.SetVersioningPolicy(ref, meta2.VersioningPolicy(*req.MaxVersions)); err != nil {
				writeErr(ctx, err)
				return
			}
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})

	default:
		writeErr(ctx, errBadPath("unsupported container method"))
	}
}
