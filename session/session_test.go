package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const notchJSON = `{
	"id": "069a79f444e94726a5befca90e38aaf5",
	"name": "Notch",
	"properties": [
		{"name": "textures", "value": "dGV4dHVyZXM=", "signature": "c2ln"}
	],
	"profileActions": []
}`

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
		wantTex  *Textures
		wantErr  bool
	}{
		{
			name:     "textures",
			body:     notchJSON,
			wantName: "Notch",
			wantTex:  &Textures{Value: "dGV4dHVyZXM=", Signature: "c2ln"},
		},
		{
			name:     "no properties",
			body:     `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch"}`,
			wantName: "Notch",
		},
		{
			name:     "unknown property ignored",
			body:     `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch","properties":[{"name":"cape","value":"x","signature":"y"}]}`,
			wantName: "Notch",
		},
		{
			name:     "unknown keys skipped",
			body:     `{"legacy":true,"id":"069a79f444e94726a5befca90e38aaf5","extra":{"a":[1,2,{"b":null}]},"name":"Notch","properties":[{"name":"textures","meta":{},"value":"v"}]}`,
			wantName: "Notch",
			wantTex:  &Textures{Value: "v"},
		},
		{
			name:    "value before name",
			body:    `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch","properties":[{"value":"v","name":"textures"}]}`,
			wantErr: true,
		},
		{
			name:    "signature before name",
			body:    `{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch","properties":[{"signature":"s","name":"textures"}]}`,
			wantErr: true,
		},
		{
			name:    "dashed id",
			body:    `{"id":"069a79f4-44e9-4726-a5be-fca90e38aaf5","name":"Notch"}`,
			wantErr: true,
		},
		{
			name:    "bad hex",
			body:    `{"id":"zz9a79f444e94726a5befca90e38aaf5","name":"Notch"}`,
			wantErr: true,
		},
		{
			name:    "missing id",
			body:    `{"name":"Notch"}`,
			wantErr: true,
		},
		{
			name:    "truncated",
			body:    `{"id":"069a79f444e94726a5befca90e38aaf5","name":"No`,
			wantErr: true,
		},
		{
			name:    "not an object",
			body:    `[]`,
			wantErr: true,
		},
		{
			name:    "numeric name",
			body:    `{"id":"069a79f444e94726a5befca90e38aaf5","name":7}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProfile(strings.NewReader(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrCorruptResponse) {
					t.Fatalf("expected ErrCorruptResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", p.Name, tt.wantName)
			}
			if got := p.ID.String(); got != "069a79f4-44e9-4726-a5be-fca90e38aaf5" {
				t.Errorf("ID = %s", got)
			}
			switch {
			case tt.wantTex == nil && p.Textures != nil:
				t.Errorf("unexpected textures %+v", p.Textures)
			case tt.wantTex != nil && (p.Textures == nil || *p.Textures != *tt.wantTex):
				t.Errorf("Textures = %+v, want %+v", p.Textures, tt.wantTex)
			}
		})
	}
}

func TestHasJoined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/minecraft/hasJoined" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("username") != "Notch" || q.Get("serverId") != "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(notchJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	defer c.Close()

	p, err := c.HasJoined(context.Background(), "Notch", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Notch" || p.Textures == nil {
		t.Fatalf("profile = %+v", p)
	}

	_, err = c.HasJoined(context.Background(), "Notch", "wrong")
	var se StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNoContent {
		t.Fatalf("expected StatusError 204, got %v", err)
	}
}

func TestHasJoinedTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	_, err := c.HasJoined(context.Background(), "Notch", "x")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestHasJoinedClosed(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	c.Close()
	if _, err := c.HasJoined(context.Background(), "Notch", "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestHasJoinedSingleFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		w.Write([]byte(notchJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	defer c.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.HasJoined(context.Background(), "Notch", "h"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := peak.Load(); got != 1 {
		t.Fatalf("peak concurrent requests = %d, want 1", got)
	}
}
