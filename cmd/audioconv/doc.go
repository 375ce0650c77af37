// Command audioconv converts audio files between formats, one at a time or
// as a batch over a bounded worker pool. It can also serve the scheduler
// over HTTP with a websocket event stream.
package main
