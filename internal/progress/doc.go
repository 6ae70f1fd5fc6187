// Package progress provides the non-blocking hub that fans crawl progress
// events out to pluggable sinks. Events are batched on a background
// goroutine so slow consumers never stall the worker pool.
package progress
