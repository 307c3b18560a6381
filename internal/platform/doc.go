// Package platform wraps the host-specific helpers the server shells out
// to: the merge-tool check, revealing a folder in the file manager, and the
// native folder picker. All of them are best effort.
package platform
