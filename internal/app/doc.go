// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the headless execution lifecycle (load or
// build a graph, evaluate it, write outputs), decoupled from any specific
// entrypoint like a CLI.
package app
