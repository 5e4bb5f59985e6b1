package gateway

import (
	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/authn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn/oiourl"
)

// handleReference serves GET /v1/reference/{ns}/{account}/{user} -
// directory resolution by default, or service resolution when
// ?srvtype=<type> is given. ?nocache=1/?noatime=1/?nomax=1 map to
// cmn.ResolveFlag bits, matching HCRESOLVE_* on the original CLI.
func (s *Server) handleReference(ctx *fasthttp.RequestCtx, rest []string) {
	ref, _, ok := containerRefFromParts(rest)
	if !ok {
		writeErr(ctx, errBadPath("reference needs ns/account/user"))
		return
	}
	if _, err := s.authorize(ctx, ref, authn.AccessRead); err != nil {
		writeErr(ctx, err)
		return
	}
	url, err := oiourl.New(ref)
	if err != nil {
		writeErr(ctx, errBadPath(err.Error()))
		return
	}

	var flags cmn.ResolveFlag
	q := ctx.QueryArgs()
	if string(q.Peek("nocache")) == "1" {
		flags |= cmn.NoCache
	}
	if string(q.Peek("noatime")) == "1" {
		flags |= cmn.NoATime
	}
	if string(q.Peek("nomax")) == "1" {
		flags |= cmn.NoMax
	}

	srvtype := string(q.Peek("srvtype"))
	var addrs []string
	if srvtype != "" {
		addrs, err = s.Resolver.ResolveReferenceService(url, srvtype, flags)
	} else {
		addrs, err = s.Resolver.ResolveReferenceDirectory(url, flags)
	}
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{"addrs": addrs})
}
