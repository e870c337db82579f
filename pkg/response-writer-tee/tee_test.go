package tee

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSaverTeesResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)

	rs.Header().Set("Content-Type", "text/html")
	rs.WriteHeader(http.StatusCreated)
	rs.Write([]byte("Hello "))
	rs.Write([]byte("world"))

	if body := rr.Body.String(); body != "Hello world" {
		t.Fatalf("Client body is %s", body)
	}
	if body := string(rs.Response()); body != "Hello world" {
		t.Fatalf("Saved body is %s", body)
	}
	if rr.Code != http.StatusCreated || rs.StatusCode() != http.StatusCreated {
		t.Fatalf("Status codes %d / %d", rr.Code, rs.StatusCode())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Content-Type header is %s", ct)
	}
	if !rs.Complete() {
		t.Fatal("Response not complete")
	}
}

func TestSaverImplicitStatus(t *testing.T) {
	rs := NewResponseSaver(nil)
	if rs.StatusCode() != 0 {
		t.Fatal("Status written before any write")
	}
	rs.Write([]byte("x"))
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", rs.StatusCode())
	}

	empty := NewResponseSaver(nil)
	empty.Finish()
	if empty.StatusCode() != http.StatusOK || len(empty.Response()) != 0 {
		t.Fatalf("Finished empty response has status %d", empty.StatusCode())
	}
}

func TestSaverSniffsContentType(t *testing.T) {
	rs := NewResponseSaver(nil)
	var seen string
	rs.OnWriteHeader = func(status int, header http.Header) {
		seen = header.Get("Content-Type")
	}
	rs.Write([]byte("<!DOCTYPE html><html><body>hi</body></html>"))
	if seen != "text/html; charset=utf-8" {
		t.Fatalf("Sniffed Content-Type is %q", seen)
	}

	typed := NewResponseSaver(nil)
	typed.Header().Set("Content-Type", "application/json")
	typed.Write([]byte("<html>"))
	if ct := typed.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Explicit Content-Type replaced with %q", ct)
	}
}

func TestSaverHeaderHook(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	var calls int
	rs.OnWriteHeader = func(status int, header http.Header) {
		calls++
		if status == http.StatusOK {
			header.Set("Cache-Control", "public, max-age=60")
		}
		header.Del("Cache-Update")
	}
	rs.Header().Set("Cache-Update", "/blog")
	rs.Write([]byte("a"))
	rs.WriteHeader(http.StatusInternalServerError)

	if calls != 1 {
		t.Fatalf("Hook called %d times", calls)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "public, max-age=60" {
		t.Fatalf("Cache-Control is %q", cc)
	}
	if rr.Header().Get("Cache-Update") != "" {
		t.Fatal("Cache-Update header leaked to client")
	}
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Second WriteHeader changed status to %d", rs.StatusCode())
	}
}

func TestSaverKeepsPresetHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("Cache-Status", "PageCache; fwd=uri-miss")
	rs := NewResponseSaver(rr)
	rs.Header().Set("Content-Type", "text/html")
	rs.Write([]byte("a"))
	if rr.Header().Get("Cache-Status") == "" {
		t.Fatal("Preset header was dropped")
	}
}

func TestSaverMaxBytes(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.MaxBytes = 4
	rs.Write([]byte("abc"))
	rs.Write([]byte("def"))

	if rr.Body.String() != "abcdef" {
		t.Fatalf("Client body is %s", rr.Body.String())
	}
	if rs.Complete() || len(rs.Response()) != 0 {
		t.Fatal("Oversized body kept")
	}
}

func TestSaverDiscard(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.Discard = true
	rs.Write([]byte("abc"))
	if rr.Body.String() != "abc" || len(rs.Response()) != 0 || rs.Complete() {
		t.Fatal("Discarding saver kept the body")
	}
}

type failingWriter struct {
	*httptest.ResponseRecorder
}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("client gone")
}

func TestSaverClientFailure(t *testing.T) {
	rs := NewResponseSaver(failingWriter{httptest.NewRecorder()})
	if _, err := rs.Write([]byte("abc")); err == nil {
		t.Fatal("Write error swallowed")
	}
	if rs.Complete() {
		t.Fatal("Partial response reported complete")
	}
}

func TestSaverFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.Flush()
	if !rr.Flushed || rs.StatusCode() != http.StatusOK {
		t.Fatal("Flush not passed through")
	}
	if rs.Unwrap() != http.ResponseWriter(rr) {
		t.Fatal("Unwrap returned another writer")
	}
}
