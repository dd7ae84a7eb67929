package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

func TestPublishSendsBasicAuthAndReturnsLink(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "link": "https://shop.example.com/post/42"})
	}))
	defer server.Close()

	client := NewClient(time.Second)
	conn := domain.Connection{SiteURL: server.URL, Login: "admin", Secret: "app-password"}
	link, err := client.Publish(context.Background(), conn, domain.Draft{Title: "Т", Body: "Б"})
	if err != nil {
		t.Fatalf("публикация: %v", err)
	}
	if link != "https://shop.example.com/post/42" {
		t.Fatalf("неожиданная ссылка: %s", link)
	}
	if gotPath != "/wp-json/wp/v2/posts" {
		t.Fatalf("неожиданный путь: %s", gotPath)
	}
	if gotAuth == "" {
		t.Fatal("запрос должен нести basic auth")
	}
	if gotBody["status"] != "publish" {
		t.Fatalf("ожидали статус publish, получили %q", gotBody["status"])
	}
}

func TestPublishErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	conn := domain.Connection{SiteURL: server.URL, Login: "admin", Secret: "bad"}
	if _, err := client.Publish(context.Background(), conn, domain.Draft{}); err == nil {
		t.Fatal("ошибка площадки должна подниматься")
	}
}

func TestDeletePreviewParsesPostID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	draft := domain.Draft{PreviewURL: server.URL + "/?p=42&preview=true"}
	if err := client.DeletePreview(context.Background(), draft); err != nil {
		t.Fatalf("удаление превью: %v", err)
	}
	if gotPath != "/wp-json/wp/v2/posts/42" {
		t.Fatalf("неожиданный путь удаления: %s", gotPath)
	}
}

func TestDeletePreviewEmptyURLIsNoop(t *testing.T) {
	client := NewClient(time.Second)
	if err := client.DeletePreview(context.Background(), domain.Draft{}); err != nil {
		t.Fatalf("пустая превью-ссылка не должна быть ошибкой: %v", err)
	}
}
