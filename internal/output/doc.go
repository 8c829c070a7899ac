// Package output writes received messages to the terminal and to files.
package output
