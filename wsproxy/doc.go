// Package wsproxy is the HTTP and WebSocket front of reportproxy.  Producers
// stream a report to the proxy over a websocket, and viewers watch it over
// their own websockets:
//
//     producer --- /new/<localID>/<name> ---> [ proxy ] <--- /stream/<name> --- viewer
//
// The proxy only moves opaque frames.  Which sessions exist and who observes
// them is decided by package sessions.
package wsproxy
