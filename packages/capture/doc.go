// Package capture extracts values from HTTP responses for use in later probes.
//
// The create probe captures the id of the status check it made; the list
// probe then searches the listing for an element carrying that id.
package capture
