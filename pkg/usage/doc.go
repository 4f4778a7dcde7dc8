// Package usage records per-request token accounting to SQLite.
//
// Handlers hand finished requests to the Recorder, which writes them
// asynchronously so accounting never blocks the request path. A cron
// scheduler prunes records past the retention window.
package usage
