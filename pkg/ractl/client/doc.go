// Package client implements the HTTP client ractl uses to talk to a Resource
// Allocator server: the login and registration endpoints, and generic CRUD
// calls against the resources listed in the static registry.
package client
