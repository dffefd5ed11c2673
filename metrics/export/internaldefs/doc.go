// Package internaldefs holds the metric names, help strings and bucket
// boundaries shared by the exporters, so Prometheus and OTel output stay
// identical.
//
// It must not import the telecare package or any exporter, and performs no
// I/O.
package internaldefs
