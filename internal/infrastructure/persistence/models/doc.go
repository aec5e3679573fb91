// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel shared by every table
//   - billing.go: payments (the ledger), invoices and orders
//
// Invoices and orders are read through these models but written column by
// column, because deployed schemas may lack optional columns. Reads tolerate
// missing columns; GORM leaves the matching fields at their zero value.
package models
