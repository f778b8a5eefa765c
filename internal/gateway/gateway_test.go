package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeAuth struct {
	token        string
	unauthorized int
}

func (f *fakeAuth) Token() string { return f.token }

func (f *fakeAuth) HandleUnauthorized() {
	f.unauthorized++
	f.token = ""
}

func newTestClient(t *testing.T, h http.Handler, a Authenticator) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL}, a)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestURLNormalization(t *testing.T) {
	c, err := New(Config{BaseURL: "http://api.example/"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		endpoint string
		want     string
	}{
		{"api/exam/1", "http://api.example/api/exam/1"},
		{"/api/exam/1", "http://api.example/api/exam/1"},
	}
	for _, tt := range tests {
		if got := c.URL(tt.endpoint); got != tt.want {
			t.Errorf("URL(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error without base URL")
	}
}

func TestTimeoutFor(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://x"}, nil)
	tests := []struct {
		endpoint string
		want     time.Duration
	}{
		{"api/exam/1", DefaultTimeout},
		{"api/check_job_status/abc", DefaultTimeout},
		{"api/upload_images", LongTimeout},
		{"/api/generate_from_images", LongTimeout},
		{"api/upload_files", LongTimeout},
		{"api/generate_from_files", LongTimeout},
	}
	for _, tt := range tests {
		if got := c.TimeoutFor(tt.endpoint); got != tt.want {
			t.Errorf("TimeoutFor(%q) = %v, want %v", tt.endpoint, got, tt.want)
		}
	}
}

func TestHeaders(t *testing.T) {
	var got http.Header
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	t.Run("json with token", func(t *testing.T) {
		c := newTestClient(t, h, &fakeAuth{token: "tok"})
		if err := c.Post(context.Background(), "api/create_exam", map[string]string{"a": "b"}, nil); err != nil {
			t.Fatalf("Post: %v", err)
		}
		if got.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", got.Get("Authorization"))
		}
		if got.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", got.Get("Content-Type"))
		}
		if got.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", got.Get("Accept"))
		}
	})

	t.Run("no token", func(t *testing.T) {
		c := newTestClient(t, h, &fakeAuth{})
		if err := c.Get(context.Background(), "api/updates", nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if _, ok := got["Authorization"]; ok {
			t.Errorf("unexpected Authorization header %q", got.Get("Authorization"))
		}
	})

	t.Run("token overrides caller header", func(t *testing.T) {
		c := newTestClient(t, h, &fakeAuth{token: "tok"})
		_, err := c.Do(context.Background(), Request{
			Endpoint: "api/uploads/x.png",
			Header: http.Header{
				"Authorization": {"Basic nope"},
				"Accept":        {"image/*"},
			},
		}, nil)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if got.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got.Get("Authorization"))
		}
		if got.Get("Accept") != "image/*" {
			t.Errorf("Accept = %q, want image/*", got.Get("Accept"))
		}
	})

	t.Run("multipart skips json defaults", func(t *testing.T) {
		c := newTestClient(t, h, &fakeAuth{token: "tok"})
		_, err := c.Do(context.Background(), Request{
			Method:   http.MethodPost,
			Endpoint: "api/upload_images",
			Multipart: &Multipart{
				Body:        strings.NewReader("--b--\r\n"),
				ContentType: "multipart/form-data; boundary=b",
			},
		}, nil)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if got.Get("Content-Type") != "multipart/form-data; boundary=b" {
			t.Errorf("Content-Type = %q", got.Get("Content-Type"))
		}
		if got.Get("Accept") != "" {
			t.Errorf("Accept should not be defaulted for multipart, got %q", got.Get("Accept"))
		}
		if got.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", got.Get("Authorization"))
		}
	})
}

func TestJSONDecode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/exam/e1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"exam-id":"e1","subject":"Physics"}`)
	}), nil)

	var out struct {
		ID      string `json:"exam-id"`
		Subject string `json:"subject"`
	}
	resp, err := c.Do(context.Background(), Request{Endpoint: "api/exam/e1"}, &out)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out.ID != "e1" || out.Subject != "Physics" {
		t.Errorf("decoded %+v", out)
	}
	if resp.Body != http.NoBody {
		t.Error("expected consumed JSON body to be replaced by NoBody")
	}
}

func TestRawResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}), nil)

	resp, err := c.Do(context.Background(), Request{Endpoint: "api/uploads/a.png"}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "\x89PNG" {
		t.Errorf("body = %q", data)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantMsg    string
	}{
		{
			name: "msg field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "bad lessons"})
			},
			wantStatus: 400, wantMsg: "bad lessons",
		},
		{
			name: "message field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusNotFound, map[string]string{"message": "Exam not found"})
			},
			wantStatus: 404, wantMsg: "Exam not found",
		},
		{
			name: "msg wins over message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "first", "message": "second"})
			},
			wantStatus: 400, wantMsg: "first",
		},
		{
			name: "non-json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus: 500, wantMsg: "Request failed with status 500",
		},
		{
			name: "json without message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadGateway, map[string]int{"code": 7})
			},
			wantStatus: 502, wantMsg: "Request failed with status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAuth{token: "tok"}
			c := newTestClient(t, tt.handler, fa)
			err := c.Get(context.Background(), "api/anything", nil)
			var he *HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected *HTTPError, got %T %v", err, err)
			}
			if he.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", he.StatusCode, tt.wantStatus)
			}
			if he.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", he.Message, tt.wantMsg)
			}
			if errors.Is(err, ErrUnauthorized) {
				t.Error("non-401 must not match ErrUnauthorized")
			}
			if fa.unauthorized != 0 {
				t.Error("non-401 must not wipe credentials")
			}
		})
	}
}

func TestUnauthorizedWipesCredentials(t *testing.T) {
	for _, endpoint := range []string{"api/exam/e1", "api/check_job_status/j1", "api/upload_images"} {
		t.Run(endpoint, func(t *testing.T) {
			fa := &fakeAuth{token: "tok"}
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			}), fa)

			err := c.Get(context.Background(), endpoint, nil)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if fa.unauthorized != 1 {
				t.Errorf("HandleUnauthorized called %d times, want 1", fa.unauthorized)
			}
			if fa.token != "" {
				t.Error("token should be cleared")
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Get(context.Background(), "api/user_stats", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, _ := New(Config{BaseURL: srv.URL}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := c.Get(ctx, "api/user_stats", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(Config{BaseURL: url}, nil)
	err := c.Get(context.Background(), "api/user_stats", nil)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NetworkError, got %T %v", err, err)
	}
}
