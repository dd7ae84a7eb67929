package yookassa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

func TestChargeSavedSendsIdempotenceKey(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotence-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "pay-1", "status": "succeeded"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, ShopID: "shop", SecretKey: "secret"})
	result, err := client.ChargeSaved(context.Background(), domain.PaymentCharge{
		UserID:          7,
		PaymentMethodID: "pm-1",
		AmountMinor:     99000,
		Description:     "Подписка Start",
		IdempotenceKey:  "lock:renewal:7:2026083112",
	})
	if err != nil {
		t.Fatalf("автосписание: %v", err)
	}
	if result.PaymentID != "pay-1" || result.Status != "succeeded" {
		t.Fatalf("неожиданный результат: %+v", result)
	}
	if gotKey != "lock:renewal:7:2026083112" {
		t.Fatalf("ключ идемпотентности не передан: %q", gotKey)
	}
	amount := gotBody["amount"].(map[string]any)
	if amount["value"] != "990.00" || amount["currency"] != "RUB" {
		t.Fatalf("сумма собрана неверно: %+v", amount)
	}
}

func TestChargeSavedRequiresKey(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.ChargeSaved(context.Background(), domain.PaymentCharge{}); err == nil {
		t.Fatal("автосписание без ключа идемпотентности должно быть ошибкой")
	}
}

func TestChargeSavedErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"type": "error", "description": "invalid_credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.ChargeSaved(context.Background(), domain.PaymentCharge{IdempotenceKey: "k"}); err == nil {
		t.Fatal("ошибка провайдера должна подниматься")
	}
}
