package rpc

import "testing"

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{Op: "put", ContainerRef: "ns/acct/user", Path: "foo.txt", Payload: []byte("hello")}
	b, err := req.MarshalMsg(nil)
	if err != nil {
		t.Fatal(err)
	}
	var out Request
	if _, err := out.UnmarshalMsg(b); err != nil {
		t.Fatal(err)
	}
	if out.Op != req.Op || out.ContainerRef != req.ContainerRef || out.Path != req.Path || string(out.Payload) != string(req.Payload) {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	rep := &Reply{Status: 200, Message: "", Payload: []byte(`{"ok":true}`)}
	b, err := rep.MarshalMsg(nil)
	if err != nil {
		t.Fatal(err)
	}
	var out Reply
	if _, err := out.UnmarshalMsg(b); err != nil {
		t.Fatal(err)
	}
	if out.Status != rep.Status || string(out.Payload) != string(rep.Payload) {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}
