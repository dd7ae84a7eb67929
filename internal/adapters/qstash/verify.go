// Package qstash проверяет подлинность доставок планировщика.
package qstash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verifier проверяет подпись тела запроса против пары ключей: текущего и
// следующего. Пара нужна для ротации ключей без простоя.
type Verifier struct {
	current []byte
	next    []byte
}

// NewVerifier создаёт проверку подписи.
func NewVerifier(currentKey, nextKey string) *Verifier {
	return &Verifier{current: []byte(currentKey), next: []byte(nextKey)}
}

// Sign подписывает тело текущим ключом. Используется в тестах и утилитах.
func (v *Verifier) Sign(body []byte) string {
	return sign(v.current, body)
}

// Verify сравнивает подпись с вычисленной по каждому из ключей.
func (v *Verifier) Verify(signature string, body []byte) bool {
	if signature == "" {
		return false
	}
	for _, key := range [][]byte{v.current, v.next} {
		if len(key) == 0 {
			continue
		}
		if hmac.Equal([]byte(signature), []byte(sign(key, body))) {
			return true
		}
	}
	return false
}

func sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
