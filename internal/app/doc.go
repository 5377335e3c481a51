// Package app provides the application service layer.
//
// Orchestrates use cases: poll creation, option management, opening and closing polls, vote processing.
// Sits between HTTP handlers and the poll registry. Every committed change is handed to the
// snapshot publisher after the registry lock is released.
package app
