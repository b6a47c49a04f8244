// Package services holds the application services between the HTTP
// transport and the fetch pipeline: the upload store, the run service
// with its memoization cache, and health reporting.
package services
