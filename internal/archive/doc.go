// Package archive stores received messages in SQLite.
//
// A subscription started with --archive records every message it receives
// so that earlier traffic can be inspected after the terminal output has
// scrolled away. The archive lives in the file named by archive.path.
package archive
