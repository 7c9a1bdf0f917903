package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linchuyao6/talk-essence/internal/model"
)

func TestIsEpisodeURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.xiaoyuzhoufm.com/episode/6420a1b2c3d4e5f6a7b8c9d0", true},
		{"https://xiaoyuzhoufm.com/episode/6420a1b2c3d4e5f6a7b8c9d0", true},
		{"http://www.xiaoyuzhoufm.com/episode/abc", true},
		{"https://WWW.XIAOYUZHOUFM.COM/episode/abc", true},
		{"https://www.xiaoyuzhoufm.com/podcast/6420a1b2c3d4e5f6", false},
		{"https://www.xiaoyuzhoufm.com/", false},
		{"https://evil.com/episode/abc", false},
		{"https://xiaoyuzhoufm.com.evil.com/episode/abc", false},
		{"ftp://www.xiaoyuzhoufm.com/episode/abc", false},
		{"not a url", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsEpisodeURL(tc.url); got != tc.want {
			t.Errorf("IsEpisodeURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestResolveOgTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
			<title>页面标题</title>
			<meta property="og:title" content="第 42 期：聊聊播客行业" />
			<meta property="og:audio" content="https://media.example.com/ep42.m4a" />
		</head><body></body></html>`))
	}))
	defer srv.Close()

	ep, err := NewResolver().Resolve(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.AudioURL != "https://media.example.com/ep42.m4a" {
		t.Errorf("audio URL = %q", ep.AudioURL)
	}
	if ep.Title != "第 42 期：聊聊播客行业" {
		t.Errorf("title = %q", ep.Title)
	}
}

func TestResolveAudioElementFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>只有 audio 标签的页面</title></head>
		<body><audio src="https://media.example.com/fallback.mp3"></audio></body></html>`))
	}))
	defer srv.Close()

	ep, err := NewResolver().Resolve(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.AudioURL != "https://media.example.com/fallback.mp3" {
		t.Errorf("audio URL = %q", ep.AudioURL)
	}
	if ep.Title != "只有 audio 标签的页面" {
		t.Errorf("title = %q", ep.Title)
	}
}

func TestResolveNoAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>无音频页面</title></head><body><p>文字内容</p></body></html>`))
	}))
	defer srv.Close()

	_, err := NewResolver().Resolve(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if model.CodeOf(err) != model.CodeFetchFailed {
		t.Errorf("code = %s, want %s", model.CodeOf(err), model.CodeFetchFailed)
	}
}

func TestResolveNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewResolver().Resolve(context.Background(), srv.URL)
	if model.CodeOf(err) != model.CodeFetchFailed {
		t.Errorf("code = %s, want %s", model.CodeOf(err), model.CodeFetchFailed)
	}
}
