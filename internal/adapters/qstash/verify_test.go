package qstash

import "testing"

func TestVerifyAcceptsCurrentAndNextKey(t *testing.T) {
	body := []byte(`{"action": "cleanup"}`)
	verifier := NewVerifier("current-key", "next-key")

	if !verifier.Verify(verifier.Sign(body), body) {
		t.Fatal("подпись текущим ключом должна приниматься")
	}
	// Планировщик уже перешёл на следующий ключ, мы ещё нет.
	ahead := NewVerifier("next-key", "")
	if !verifier.Verify(ahead.Sign(body), body) {
		t.Fatal("подпись следующим ключом должна приниматься до ротации")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v := NewVerifier("current-key", "")
	signature := v.Sign([]byte(`{"action": "cleanup"}`))
	if v.Verify(signature, []byte(`{"action": "notify"}`)) {
		t.Fatal("подпись не должна подходить к изменённому телу")
	}
}

func TestVerifyRejectsEmptySignature(t *testing.T) {
	v := NewVerifier("current-key", "next-key")
	if v.Verify("", []byte("body")) {
		t.Fatal("пустая подпись должна отклоняться")
	}
}
