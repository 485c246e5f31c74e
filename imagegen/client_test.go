// Copyright (c) 2023 BVK Chaitanya

package imagegen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	var form map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/obtener_imagen" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form = make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		w.Write([]byte("/outputs/2024/abc123.png\n"))
	}))
	defer ts.Close()

	c, err := New(ts.URL+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := c.Generate(context.Background(), &Request{Prompt: "abstract art"})
	if err != nil {
		t.Fatal(err)
	}
	if want := ts.URL + "/images/abc123.png"; u != want {
		t.Fatalf("want %q, got %q", want, u)
	}

	wants := map[string]string{
		"texto":          "abstract art",
		"steps":          "50",
		"cfgScale":       "7",
		"sampler":        "DPM++ 2M",
		"width":          "512",
		"height":         "512",
		"seed":           "-1",
		"negativePrompt": "",
		"model":          "CHEYENNE_v16.safetensors",
	}
	for k, want := range wants {
		if got, ok := form[k]; !ok || got != want {
			t.Fatalf("want field %s=%q, got %q", k, want, got)
		}
	}
}

func TestGenerateError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of memory", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := New(ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), &Request{Prompt: "x"})
	if err == nil {
		t.Fatalf("want error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "image service error 503: out of memory") {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestNewRejectsRelativeRoot(t *testing.T) {
	for _, root := range []string{"", "images.local", "/obtener", "ftp://host"} {
		if _, err := New(root, nil); err == nil {
			t.Fatalf("want error for root %q", root)
		}
	}
}
