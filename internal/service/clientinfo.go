// clientinfo.go — извлечение сведений о клиенте для журнала скачиваний.
package service

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP возвращает IP клиента: первое значение X-Forwarded-For
// (без пробелов), иначе адрес удалённой стороны соединения без порта.
// Если заголовок есть, но первое значение пустое, возвращается "".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr без порта (например, в тестах или за unix-сокетом)
		return r.RemoteAddr
	}
	return host
}

// RequestScheme возвращает схему запроса: https при TLS-соединении
// или, если trustProxy, при X-Forwarded-Proto: https.
func RequestScheme(r *http.Request, trustProxy bool) string {
	if r.TLS != nil {
		return "https"
	}
	if trustProxy {
		proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return "https"
		}
	}
	return "http"
}
