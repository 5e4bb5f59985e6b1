package gateway

import (
	"io"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/authn"
	"github.com/GuillaumeDelaporte/oio-sds/conscience"
)

type registerRequest struct {
	Addr string             `json:"addr"`
	Tags map[string]float64 `json:"tags"`
}

// handleConscience serves:
//
//	GET  /v1/conscience/{type}            list services (?all=1 includes expired)
//	POST /v1/conscience/{type}             register/refresh a service
//	POST /v1/conscience/{type}/{addr}/lock    lock a service out of selection
//	POST /v1/conscience/{type}/{addr}/unlock  reinstate it
func (s *Server) handleConscience(ctx *fasthttp.RequestCtx, rest []string) {
	if _, err := s.authorize(ctx, "", authn.AccessRead); err != nil {
		writeErr(ctx, err)
		return
	}
	if len(rest) == 0 {
		writeErr(ctx, errBadPath("conscience type missing"))
		return
	}
	typ := rest[0]

	switch {
	case len(rest) == 1 && string(ctx.Method()) == fasthttp.MethodGet:
		includeExpired := string(ctx.QueryArgs().Peek("all")) == "1"
		snaps, err := s.Conscience.List(typ, includeExpired)
		if err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, snaps)

	case len(rest) == 1 && string(ctx.Method()) == fasthttp.MethodPost:
		body, err := io.ReadAll(bodyReader(ctx))
		if err != nil {
			writeErr(ctx, errBadPath("reading body: "+err.Error()))
			return
		}
		var req registerRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeErr(ctx, errBadPath("decoding body: "+err.Error()))
			return
		}
		info := conscience.ServiceInfo{
			ID:   conscience.ServiceID{Type: typ, Addr: req.Addr},
			Tags: req.Tags,
		}
		snap, err := s.Conscience.Register(info, false)
		if err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, snap)

	case len(rest) == 3 && (rest[2] == "lock" || rest[2] == "unlock") && string(ctx.Method()) == fasthttp.MethodPost:
		id := conscience.ServiceID{Type: typ, Addr: rest[1]}
		var err error
		if rest[2] == "lock" {
			err = s.Conscience.Lock(id)
		} else {
			err = s.Conscience.Unlock(id)
		}
		if err != nil {
			writeErr(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})

	default:
		writeErr(ctx, errBadPath("unsupported conscience route"))
	}
}

func bodyReader(ctx *fasthttp.RequestCtx) io.Reader {
	return &sliceReader{b: ctx.PostBody()}
}

type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
