package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestModelsURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://175.0.0.1:7777/v1/chat/completions", "http://175.0.0.1:7777/v1/models"},
		{"http://localhost:8000/v1/chat/completions/", "http://localhost:8000/v1/models"},
		{"http://localhost:8000/v1", "http://localhost:8000/v1/models"},
		{"http://localhost:8000", "http://localhost:8000/v1/models"},
	}
	for _, tc := range tests {
		if got := ModelsURL(tc.in); got != tc.want {
			t.Errorf("ModelsURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCheckEndpointOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/v1/models" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization: got %q", got)
		}
		fmt.Fprint(w, `{"object":"list","data":[{"id":"Qwen/Qwen2.5-VL-7B-Instruct","object":"model"}]}`)
	}))
	defer srv.Close()

	c := New(Options{ChatURL: srv.URL + "/v1/chat/completions", APIKey: "secret"})
	st := c.CheckEndpoint(context.Background())
	if !st.OK {
		t.Fatalf("expected OK, got %+v", st)
	}
	if len(st.Models) != 1 || st.Models[0] != "Qwen/Qwen2.5-VL-7B-Instruct" {
		t.Errorf("models: got %v", st.Models)
	}
	if st.URL != srv.URL+"/v1/models" {
		t.Errorf("url: got %q", st.URL)
	}
}

func TestCheckEndpointNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := New(Options{ChatURL: srv.URL + "/v1/chat/completions", APIKey: "wrong"}).CheckEndpoint(context.Background())
	if st.OK {
		t.Fatal("expected failure on 401")
	}
	if !strings.Contains(st.Message, "HTTP 401") || !strings.Contains(st.Message, "invalid api key") {
		t.Errorf("message: got %q", st.Message)
	}
}

func TestCheckEndpointTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	st := New(Options{ChatURL: srv.URL + "/v1/chat/completions", Timeout: 50 * time.Millisecond}).CheckEndpoint(context.Background())
	if st.OK {
		t.Fatal("expected failure on timeout")
	}
	if st.Message != "timeout" {
		t.Errorf("message: got %q", st.Message)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeBucket struct{ err error }

func (f fakeBucket) HeadBucket(ctx context.Context) error { return f.err }

func TestSummaryOptionalSinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	sum := New(Options{ChatURL: srv.URL + "/v1/chat/completions"}).Summary(context.Background())
	if !sum.Endpoint.OK || sum.Redis.OK || sum.S3.OK {
		t.Fatalf("unexpected summary without sinks: %+v", sum)
	}

	sum = New(Options{
		ChatURL: srv.URL + "/v1/chat/completions",
		Redis:   fakePinger{},
		Bucket:  fakeBucket{err: errors.New("AccessDenied")},
	}).Summary(context.Background())
	if !sum.Redis.OK {
		t.Errorf("redis: got %+v", sum.Redis)
	}
	if sum.S3.OK || sum.S3.Message != "AccessDenied" {
		t.Errorf("s3: got %+v", sum.S3)
	}
}
