// Package proxy implements the HTTP boundary of the translation proxy:
// request decoding, the error envelope, and response writing for both
// buffered JSON and NDJSON streaming replies.
package proxy
