// Package main is the standalone META2 server executable: one process
// hosting the container metadata engine, reachable over HTTP+msgpack by
// cmd/oio-proxy when the two are deployed split rather than as one
// binary.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/meta2"
	"github.com/GuillaumeDelaporte/oio-sds/rpc"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
)

var jsonMarshal = jsoniter.ConfigCompatibleWithStandardLibrary.Marshal

var (
	configPath = flag.String("config", "", "path to config JSON (defaults built in if empty)")
	listen     = flag.String("listen", ":6011", "address to serve the RPC endpoint on")
)

var (
	version string
	build   string
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg, err := cmn.LoadConfig(*configPath)
	if err != nil {
		glog.Errorf("oio-meta2: loading config: %v", err)
		return 1
	}

	st := stats.NewRegistry(prometheus.NewRegistry())
	engine := meta2.NewEngine(cfg.Meta2, st)
	h := &rpcHandler{engine: engine}

	glog.Infof("oio-meta2 %s (%s): listening on %s (data_dir=%q)", version, build, *listen, cfg.Meta2.DataDir)
	if err := http.ListenAndServe(*listen, h); err != nil {
		glog.Errorf("oio-meta2: %v", err)
		return 1
	}
	return 0
}

// rpcHandler decodes one rpc.Request per POST body and dispatches it to
// the engine, replying with one rpc.Reply - the "plain HTTP+msgpack"
// split-process transport.
type rpcHandler struct {
	engine *meta2.Engine
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req rpc.Request
	if _, err := req.UnmarshalMsg(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := h.dispatch(&req)
	out, err := reply.MarshalMsg(nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Write(out)
}

func (h *rpcHandler) dispatch(req *rpc.Request) *rpc.Reply {
	switch req.Op {
	case "purge":
		res, err := h.engine.Purge(req.ContainerRef)
		if err != nil {
			return errReply(err)
		}
		return okReply(res)
	case "dedup":
		merged, err := h.engine.Deduplicate(req.ContainerRef)
		if err != nil {
			return errReply(err)
		}
		return okReply(map[string]int{"merged": merged})
	case "container_info":
		info, err := h.engine.ContainerInfo(req.ContainerRef)
		if err != nil {
			return errReply(err)
		}
		return okReply(info)
	default:
		return &rpc.Reply{Status: cmn.CodeBadRequest, Message: "oio-meta2: unknown op " + req.Op}
	}
}

func errReply(err error) *rpc.Reply {
	code := cmn.CodeInternal
	if e, ok := cmn.AsErr(err); ok {
		code = e.Code()
	}
	return &rpc.Reply{Status: code, Message: err.Error()}
}

func okReply(v interface{}) *rpc.Reply {
	payload, err := jsonMarshal(v)
	if err != nil {
		return &rpc.Reply{Status: cmn.CodeInternal, Message: err.Error()}
	}
	return &rpc.Reply{Status: cmn.CodeOK, Payload: payload}
}
