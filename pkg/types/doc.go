// Package types defines the entity types, event model, configuration, and
// standard errors shared by the syncd server and client.
package types
