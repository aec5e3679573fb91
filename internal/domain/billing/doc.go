// Package billing provides domain models for payment reconciliation and status propagation.
//
// The payment ledger is the single source of truth for money received. Invoice
// and order payment fields are projections derived from it and rewritten after
// every ledger change.
//
// Key Aggregates:
//   - Payment: Append-only ledger entry; refunds are negative entries linked to their original
//   - Invoice: Line items, totals and a projection of the ledger for its scope
//
// Value Objects:
//   - Scope: The order and/or invoice a ledger entry or computation is keyed to
//   - LedgerSummary: Reconciled totals (paid, refunded, net) for a scope
//   - InvoiceProjection / OrderProjection: Derived status fields written back to the stores
//
// Domain Services:
//   - ReconciliationService: Computes net paid for a scope from reconcilable entries
//   - DeriveInvoiceStatus / DeriveOrderPaymentStatus: Map ledger totals to statuses
//
// Projection writes that name a column the deployed schema lacks surface a
// SchemaDriftError so callers can retry with the reduced payload.
package billing
