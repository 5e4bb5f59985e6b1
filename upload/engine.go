package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pierrec/lz4/v3"
	"golang.org/x/sync/errgroup"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
)

// Destination is one chunk service URL the engine fans a PUT out to -
// normally a layout.ChunkPlacement.Service.Addr turned into a full
// per-chunk upload URL by the caller.
type Destination struct {
	ChunkID string
	URL     string
	Headers map[string]string
}

// Result is one destination's outcome.
type Result struct {
	Destination Destination
	StatusCode  int
	Size        int64
	Err         error
}

// Request describes one content's fan-out.
type Request struct {
	Source       io.Reader
	Destinations []Destination
	Compress     bool // wraps Source through lz4 before it reaches the shared buffer
}

// Summary is the outcome of one Put call: the MD5 computed once over
// whatever bytes actually left the shared buffer, the byte count, and a
// Result per destination.
type Summary struct {
	MD5     string
	Size    int64
	Results []Result
}

// Engine drives one or more concurrent fan-outs, sharing connect/op
// timeouts taken from cmn.UploadConfig.
type Engine struct {
	cfg cmn.UploadConfig
	st  *stats.Registry

	client *http.Client
}

func NewEngine(cfg cmn.UploadConfig, st *stats.Registry) *Engine {
	dialer := &net.Dialer{Timeout: cfg.TimeoutConnect}
	return &Engine{
		cfg: cfg,
		st:  st,
		client: &http.Client{
			Timeout: cfg.TimeoutOp,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
}

// Put streams req.Source once into a sharedBuffer and fans it out to
// every destination concurrently via errgroup, matching
// http_put.c's one-reader-many-writers model. A destination failing
// does not cancel the others - every Result is returned, partial
// failure is the caller's (gateway's) decision to make.
func (e *Engine) Put(ctx context.Context, req Request) (*Summary, error) {
	if len(req.Destinations) == 0 {
		return nil, cmn.ErrBadRequest("upload: no destinations given")
	}

	source := req.Source
	if req.Compress {
		pr, pw := io.Pipe()
		go func() {
			zw := lz4.NewWriter(pw)
			_, err := io.Copy(zw, req.Source)
			if err == nil {
				err = zw.Close()
			}
			pw.CloseWithError(err)
		}()
		source = pr
	}

	sb := newSharedBuffer()
	hasher := md5.New()
	var total int64

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := source.Read(buf)
			if n > 0 {
				hasher.Write(buf[:n])
				total += int64(n)
				sb.write(buf[:n])
			}
			if err != nil {
				if err == io.EOF {
					sb.close(nil)
				} else {
					sb.close(err)
				}
				return
			}
		}
	}()

	results := make([]Result, len(req.Destinations))
	g, gctx := errgroup.WithContext(ctx)
	for i, dest := range req.Destinations {
		i, dest := i, dest
		g.Go(func() error {
			start := time.Now()
			body := &cursor{sb: sb}
			r, err := e.putOne(gctx, dest, body)
			if e.st != nil {
				stats.Since(e.st.UploadLatency, start)
				if err != nil {
					e.st.UploadFailed.Inc()
				} else {
					e.st.UploadOK.Inc()
				}
			}
			results[i] = r
			_ = err // destination failures are reported, not fatal to the group
			return nil
		})
	}
	// errgroup's error is always nil here since putOne never returns an
	// error from the Go func itself; wait only to join the goroutines.
	_ = g.Wait()

	if e.st != nil {
		e.st.UploadRedoSize.Observe(float64(total))
	}

	return &Summary{
		MD5:     hex.EncodeToString(hasher.Sum(nil)),
		Size:    total,
		Results: results,
	}, nil
}

func (e *Engine) putOne(ctx context.Context, dest Destination, body io.Reader) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dest.URL, body)
	if err != nil {
		return Result{Destination: dest, Err: err}, err
	}
	for k, v := range dest.Headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return Result{Destination: dest, Err: fmt.Errorf("upload: %s: %w", dest.URL, err)}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("upload: %s: status %d", dest.URL, resp.StatusCode)
		return Result{Destination: dest, StatusCode: resp.StatusCode, Err: err}, err
	}
	return Result{Destination: dest, StatusCode: resp.StatusCode}, nil
}

// SuccessCount reports how many destinations in a Summary succeeded -
// used by the gateway/layout caller to decide whether enough chunks
// landed to satisfy the policy's MinSuccesses (e.g. RAIN tolerating up to
// M failures).
func (s *Summary) SuccessCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}
