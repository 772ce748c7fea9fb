// Package config loads the HCL project configuration: logging, device
// limits, and per-kind node input defaults.
package config
