// Package internaldefs maps the client's metric IDs onto exported families,
// labels and bucket bounds, shared by both exporters so Prometheus and OTel
// output describe the same series.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
