// Package mailbox defines the entity types shared by the reconciliation engine:
// raw messages as delivered by a mailbox backend, the subscriptions derived from
// them, and the snapshots a backend returns from its cache or from a scan.
//
// Values in this package are plain data. A RawMessage is immutable once fetched
// and is superseded wholesale by the next scan; nothing here performs I/O.
package mailbox
