package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/conscience"
	"github.com/GuillaumeDelaporte/oio-sds/layout"
	"github.com/GuillaumeDelaporte/oio-sds/meta2"
	"github.com/GuillaumeDelaporte/oio-sds/resolver"
	"github.com/GuillaumeDelaporte/oio-sds/upload"
)

func newTestGateway(t *testing.T, rawxCount int) (*Server, []*httptest.Server) {
	t.Helper()
	consc := conscience.New(nil, time.Hour)
	if err := consc.DeclareType(conscience.TypeConfig{
		Type: "rawx", ScoreExpr: "cpu:1", ScoreExpiration: time.Hour, ScoreVariationBound: 100,
	}); err != nil {
		t.Fatal(err)
	}

	servers := make([]*httptest.Server, rawxCount)
	for i := range servers {
		servers[i] = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))
		addr := strings.TrimPrefix(servers[i].URL, "http://")
		if _, err := consc.Register(conscience.ServiceInfo{
			ID:   conscience.ServiceID{Type: "rawx", Addr: addr},
			Tags: map[string]float64{"cpu": float64(100 - i)},
		}, false); err != nil {
			t.Fatal(err)
		}
	}

	resolv, err := resolver.New(
		cmn.ResolverConfig{CSM0TTL: time.Minute, CSM0Max: 10, ServicesTTL: time.Minute, ServicesMax: 10},
		func(ref string) ([]string, error) { return []string{"meta2-1"}, nil },
		func(ref, srvtype string) ([]string, error) { return []string{"rawx-1"}, nil },
		nil)
	if err != nil {
		t.Fatal(err)
	}

	m2 := meta2.NewMemEngine(nil)
	up := upload.NewEngine(cmn.UploadConfig{TimeoutConnect: time.Second, TimeoutOp: 5 * time.Second}, nil)

	policies := map[string]*layout.Policy{}
	p, err := layout.ParsePolicy("TWOCOPIES:DUPLI:nb_copy=2")
	if err != nil {
		t.Fatal(err)
	}
	policies[p.Name] = p

	srv := New(cmn.GatewayConfig{Listen: ":0", MaxRedirects: 7}, consc, resolv, m2, up, policies, nil)
	return srv, servers
}

func closeAll(servers []*httptest.Server) {
	for _, s := range servers {
		s.Close()
	}
}

func newCtx(method, path, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	return &ctx
}

func TestHealthRoute(t *testing.T) {
	srv, servers := newTestGateway(t, 0)
	defer closeAll(servers)

	ctx := newCtx(fasthttp.MethodGet, "/v1/health", "")
	srv.Handler(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestContentPutThenGetRoundTrip(t *testing.T) {
	srv, servers := newTestGateway(t, 2)
	defer closeAll(servers)

	putCtx := newCtx(fasthttp.MethodPut, "/v1/content/ns1/acct1/user1/hello.txt?policy=TWOCOPIES", "hello world")
	srv.Handler(putCtx)
	if putCtx.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", putCtx.Response.StatusCode(), putCtx.Response.Body())
	}

	getCtx := newCtx(fasthttp.MethodGet, "/v1/content/ns1/acct1/user1/hello.txt?meta=1", "")
	srv.Handler(getCtx)
	if getCtx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getCtx.Response.StatusCode(), getCtx.Response.Body())
	}
}

func TestContentPutUnknownPolicyRejected(t *testing.T) {
	srv, servers := newTestGateway(t, 2)
	defer closeAll(servers)

	ctx := newCtx(fasthttp.MethodPut, "/v1/content/ns1/acct1/user1/hello.txt?policy=NOPE", "x")
	srv.Handler(ctx)
	if ctx.Response.StatusCode() == fasthttp.StatusCreated {
		t.Fatal("expected failure for unknown policy")
	}
}

func TestConscienceRegisterAndList(t *testing.T) {
	srv, servers := newTestGateway(t, 1)
	defer closeAll(servers)

	ctx := newCtx(fasthttp.MethodGet, "/v1/conscience/rawx", "")
	srv.Handler(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestPropertyRoundTrip(t *testing.T) {
	srv, servers := newTestGateway(t, 2)
	defer closeAll(servers)

	putCtx := newCtx(fasthttp.MethodPut, "/v1/content/ns1/acct1/user1/hello.txt?policy=TWOCOPIES", "hello world")
	srv.Handler(putCtx)
	if putCtx.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("setup PUT failed: %d", putCtx.Response.StatusCode())
	}

	setCtx := newCtx(fasthttp.MethodPut, "/v1/property/ns1/acct1/user1/hello.txt/owner", `{"value":"alice"}`)
	srv.Handler(setCtx)
	if setCtx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("property set failed: %d: %s", setCtx.Response.StatusCode(), setCtx.Response.Body())
	}

	getCtx := newCtx(fasthttp.MethodGet, "/v1/property/ns1/acct1/user1/hello.txt", "")
	srv.Handler(getCtx)
	if getCtx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("property get failed: %d", getCtx.Response.StatusCode())
	}
	if !strings.Contains(string(getCtx.Response.Body()), "alice") {
		t.Fatalf("expected owner=alice in response, got %s", getCtx.Response.Body())
	}
}
