package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
)

func newTestServer(t *testing.T, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
}

func TestPutFansOutToAllDestinations(t *testing.T) {
	s1 := newTestServer(t, false)
	defer s1.Close()
	s2 := newTestServer(t, false)
	defer s2.Close()

	e := NewEngine(cmn.UploadConfig{TimeoutConnect: time.Second, TimeoutOp: 5 * time.Second}, nil)
	payload := strings.Repeat("x", 1<<16)
	summary, err := e.Put(context.Background(), Request{
		Source: strings.NewReader(payload),
		Destinations: []Destination{
			{ChunkID: "c0", URL: s1.URL},
			{ChunkID: "c1", URL: s2.URL},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), summary.Size)
	}
	if summary.SuccessCount() != 2 {
		t.Fatalf("expected 2 successes, got %d", summary.SuccessCount())
	}
	if summary.MD5 == "" {
		t.Fatal("expected non-empty md5")
	}
}

func TestPutRecordsPartialFailure(t *testing.T) {
	ok := newTestServer(t, false)
	defer ok.Close()
	bad := newTestServer(t, true)
	defer bad.Close()

	e := NewEngine(cmn.UploadConfig{TimeoutConnect: time.Second, TimeoutOp: 5 * time.Second}, nil)
	summary, err := e.Put(context.Background(), Request{
		Source: strings.NewReader("hello world"),
		Destinations: []Destination{
			{ChunkID: "c0", URL: ok.URL},
			{ChunkID: "c1", URL: bad.URL},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.SuccessCount() != 1 {
		t.Fatalf("expected 1 success out of 2, got %d", summary.SuccessCount())
	}
}

func TestPutRejectsNoDestinations(t *testing.T) {
	e := NewEngine(cmn.UploadConfig{TimeoutConnect: time.Second, TimeoutOp: time.Second}, nil)
	if _, err := e.Put(context.Background(), Request{Source: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error with no destinations")
	}
}
