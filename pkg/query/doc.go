// Package query implements document matching against the filter dialect,
// update-operator application, and inclusion/exclusion projection.
package query
