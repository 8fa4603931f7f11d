// Package app composes the chip bank service from its parts and manages
// their lifecycle.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/chip/        # Domain models (pure data structures)
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # TransferStore, TransferUnit, PlayerDirectory
//	│   ├── memory/         # In-memory implementation for tests and local dev
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/transfer/  # Transfer orchestrator (validation, atomic protocol)
//	├── events/             # Transfer event publishing (kafka)
//	├── httpapi/            # HTTP API handlers and routing
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus collectors
//
// Business rules live in services/transfer; this package only wires stores,
// services and lifecycle together.
package app
