// Package adapter defines the boundary between the central session layer and a
// platform Bluetooth LE stack.
//
// An Adapter accepts requests (scan, connect, discover) and reports their
// outcomes asynchronously through an EventHandler. Requests never block on the
// radio: a returned error only means the request could not be issued. Optional
// capabilities (reading values, toggling notifications, cancelling a
// connection) are exposed as separate interfaces and discovered with a type
// assertion.
package adapter
