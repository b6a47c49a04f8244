// Package http contains the chi HTTP handlers for the trends API:
// query uploads, run management, downloads, health and the embedded UI.
package http
