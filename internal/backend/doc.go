// Package backend defines the interface through which aigrace drives the
// external circuit tool, along with the invocation types exchanged between
// the race/pipeline layers and backend implementations.
package backend
