// Package app wires configuration, services, transport and
// observability into the running HTTP application.
package app
