// Package ws streams the interception audit log to WebSocket subscribers.
//
// Hub is an io.Writer: the server hands it to every sandbox runtime as the
// audit output, and each complete line becomes one JSON message
//
//	{"type":"audit","line":"[GET] navigator -> userAgent = \"...\"","timestamp":1700000000}
//
// on every connection opened against GET /ws/audit.
package ws
