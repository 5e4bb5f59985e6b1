package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/authn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/layout"
	"github.com/GuillaumeDelaporte/oio-sds/meta2"
	"github.com/GuillaumeDelaporte/oio-sds/upload"
)

const rawxServiceType = "rawx"

// handleContent serves:
//
//	GET    /v1/content/{ns}/{account}/{user}/{path...}  fetch (?version=N pins a version)
//	PUT    /v1/content/{ns}/{account}/{user}/{path...}   upload (?policy=name picks the layout)
//	DELETE /v1/content/{ns}/{account}/{user}/{path...}   delete (?version=N forces a hard delete of that version)
func (s *Server) handleContent(ctx *fasthttp.RequestCtx, rest []string) {
	ref, pathParts, ok := containerRefFromParts(rest)
	if !ok || len(pathParts) == 0 {
		writeErr(ctx, errBadPath("content needs ns/account/user/path"))
		return
	}
	path := strings.Join(pathParts, "/")

	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		s.handleContentGet(ctx, ref, path)
	case fasthttp.MethodPut:
		s.handleContentPut(ctx, ref, path)
	case fasthttp.MethodDelete:
		s.handleContentDelete(ctx, ref, path)
	default:
		writeErr(ctx, errBadPath("unsupported content method"))
	}
}

func (s *Server) handleContentGet(ctx *fasthttp.RequestCtx, ref, path string) {
	if _, err := s.authorize(ctx, ref, authn.AccessRead); err != nil {
		writeErr(ctx, err)
		return
	}
	opts := meta2.GetOptions{}
	if v := string(ctx.QueryArgs().Peek("version")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(ctx, errBadPath("bad version"))
			return
		}
		opts.Version, opts.HasVersion = n, true
	}
	alias, content, chunks, err := s.Meta2.Get(ref, path, opts)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if string(ctx.QueryArgs().Peek("meta")) == "1" || len(chunks) == 0 {
		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"alias": alias, "content": content, "chunks": chunks,
		})
		return
	}

	// Stream the object body back from the first reachable chunk replica -
	// any one of them holds the full payload since erasure-coded stripe
	// reassembly is client-side and out of this gateway's scope.
	var lastErr error
	for _, ch := range chunks {
		if ch.Parity {
			continue
		}
		resp, err := http.Get(ch.URL)
		if err != nil {
			lastErr = err
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("gateway: chunk %s: status %d", ch.URL, resp.StatusCode)
			continue
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("application/octet-stream")
		ctx.SetBodyStream(resp.Body, int(content.Size))
		return
	}
	if lastErr == nil {
		lastErr = cmn.ErrContentNotFound("gateway: %q has no readable chunk", path)
	}
	writeErr(ctx, cmn.ErrReadTimeout("gateway: %q: %v", path, lastErr))
}

func (s *Server) handleContentPut(ctx *fasthttp.RequestCtx, ref, path string) {
	if _, err := s.authorize(ctx, ref, authn.AccessWrite); err != nil {
		writeErr(ctx, err)
		return
	}

	policyName := string(ctx.QueryArgs().Peek("policy"))
	if policyName == "" {
		info, err := s.Meta2.ContainerInfo(ref)
		if err == nil {
			policyName = info.DefaultPolicy
		}
	}
	policy, ok := s.Policies[policyName]
	if !ok {
		writeErr(ctx, errBadPath(fmt.Sprintf("unknown storage policy %q", policyName)))
		return
	}

	snaps, err := s.Conscience.List(rawxServiceType, false)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	candidates := make([]layout.Candidate, 0, len(snaps))
	for _, snap := range snaps {
		if snap.Locked {
			continue
		}
		candidates = append(candidates, layout.Candidate{
			Addr: snap.ID.Addr,
			// The registry doesn't track a rack/host hierarchy string
			// today; using the
			// address itself as the location still lets a distance>0
			// policy refuse to double-place on the same rawx.
			Location: snap.ID.Addr,
			Score:    snap.Score,
		})
	}
	lay, err := policy.Generate(candidates, s.st)
	if err != nil {
		writeErr(ctx, cmn.ErrPolicyNotSatisfiable("gateway: %v", err))
		return
	}

	contentID := cmn.GenUUID()
	dests := make([]upload.Destination, len(lay.Placements))
	for i, pl := range lay.Placements {
		chunkID := cmn.GenUUID()
		dests[i] = upload.Destination{
			ChunkID: chunkID,
			URL:     fmt.Sprintf("http://%s/%s", pl.Service.Addr, chunkID),
		}
	}

	summary, err := s.Upload.Put(context.Background(), upload.Request{
		Source:       bodyReader(ctx),
		Destinations: dests,
	})
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if summary.SuccessCount() < policy.MinSuccesses() {
		writeErr(ctx, cmn.ErrPolicyNotSatisfiable("gateway: only %d/%d chunks written", summary.SuccessCount(), policy.ChunkCount()))
		return
	}

	chunks := make([]meta2.Chunk, 0, len(lay.Placements))
	for i, pl := range lay.Placements {
		if summary.Results[i].Err != nil {
			continue
		}
		chunks = append(chunks, meta2.Chunk{
			ID:       dests[i].ChunkID,
			Position: pl.Position,
			Parity:   pl.Parity,
			URL:      dests[i].URL,
			Size:     summary.Size,
		})
	}

	version, err := s.Meta2.Put(ref, path, meta2.Content{
		ID:       contentID,
		Size:     summary.Size,
		Policy:   policy.Name,
		Checksum: summary.MD5,
	}, chunks)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, map[string]interface{}{
		"version": version, "content_id": contentID, "md5": summary.MD5, "size": summary.Size,
	})
}

func (s *Server) handleContentDelete(ctx *fasthttp.RequestCtx, ref, path string) {
	if _, err := s.authorize(ctx, ref, authn.AccessDelete); err != nil {
		writeErr(ctx, err)
		return
	}
	var version *int64
	if v := string(ctx.QueryArgs().Peek("version")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(ctx, errBadPath("bad version"))
			return
		}
		version = &n
	}
	if err := s.Meta2.Delete(ref, path, version); err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
}

var _ io.Reader = (*sliceReader)(nil)
