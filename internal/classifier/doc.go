// Package classifier assigns subscription categories to messages using keyword
// heuristics.
//
// Classification is pure and total: the same subject and body always yield the
// same Category, and empty input yields CategoryUnknown. Keyword sets form a
// Policy, which can be replaced at runtime by loading a YAML file:
//
//	paid:
//	  - invoice
//	  - receipt
//	free:
//	  - newsletter
//	promotional:
//	  - discount
//
// Only messages that carry a List-Unsubscribe header are considered
// subscriptions (see IsSubscription).
package classifier
