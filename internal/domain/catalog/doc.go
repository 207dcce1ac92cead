// Package catalog lists the generation models and builds job arguments
// for them.
//
// The catalog is embedded YAML. Unknown model ids resolve to the default
// model of the requested kind, so a stale client selection never produces
// an invalid job.
package catalog
