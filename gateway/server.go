// Package gateway implements the HTTP front door: one
// fasthttp server translating REST requests into conscience/resolver/
// meta2 calls, with JWT bearer auth and the error-class -> HTTP-status
// mapping as the one place that translation happens.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gateway

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/authn"
	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/conscience"
	"github.com/GuillaumeDelaporte/oio-sds/layout"
	"github.com/GuillaumeDelaporte/oio-sds/meta2"
	"github.com/GuillaumeDelaporte/oio-sds/resolver"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
	"github.com/GuillaumeDelaporte/oio-sds/upload"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server bundles every domain component the gateway fronts. Nil fields
// are legal in tests that only exercise a handler subset.
type Server struct {
	cfg cmn.GatewayConfig

	Conscience *conscience.Conscience
	Resolver   *resolver.Resolver
	Meta2      *meta2.Engine
	Upload     *upload.Engine
	Policies   map[string]*layout.Policy

	st *stats.Registry
}

func New(cfg cmn.GatewayConfig, c *conscience.Conscience, r *resolver.Resolver, m2 *meta2.Engine, up *upload.Engine, policies map[string]*layout.Policy, st *stats.Registry) *Server {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 7
	}
	return &Server{cfg: cfg, Conscience: c, Resolver: r, Meta2: m2, Upload: up, Policies: policies, st: st}
}

// ListenAndServe blocks serving fasthttp requests on cfg.Listen.
func (s *Server) ListenAndServe() error {
	return fasthttp.ListenAndServe(s.cfg.Listen, s.Handler)
}

// Handler is the single fasthttp entry point; route dispatch and auth
// both happen here so every response passes through one latency/metric
// observation point.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := s.dispatch(ctx)
	status := ctx.Response.StatusCode()
	if s.st != nil {
		s.st.GatewayRequests.WithLabelValues(route, statusLabel(status)).Inc()
		stats.Since(s.st.GatewayLatency.WithLabelValues(route), start)
	}
}

func statusLabel(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(body)
}

func writeErr(ctx *fasthttp.RequestCtx, err error) {
	status := cmn.HTTPStatus(err)
	writeJSON(ctx, status, map[string]string{"error": err.Error()})
}

// authorize extracts and verifies the bearer token, then checks it
// against the requested container/access combination. An empty
// GatewayConfig.JWTSigningKey disables auth entirely (dev mode).
func (s *Server) authorize(ctx *fasthttp.RequestCtx, containerRef string, need authn.AccessAttrs) (*authn.Token, error) {
	if s.cfg.JWTSigningKey == "" {
		return &authn.Token{IsAdmin: true}, nil
	}
	header := string(ctx.Request.Header.Peek("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, authn.ErrNoToken
	}
	tk, err := authn.DecryptToken(header[len(prefix):], s.cfg.JWTSigningKey)
	if err != nil {
		return nil, err
	}
	if !tk.Expires.IsZero() && time.Now().After(tk.Expires) {
		return nil, authn.ErrTokenExpired
	}
	user := ""
	if err := tk.CheckPermissions(user, containerRef, need); err != nil {
		return nil, err
	}
	return tk, nil
}
