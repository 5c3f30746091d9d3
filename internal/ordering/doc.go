// Package ordering builds the cross-endpoint precedence forest of a test
// specification and answers eligibility queries against it at run time.
//
// # Core Concepts
//
// Forest: the precedence structure across every endpoint of one test part.
// It is appended to while expectations are declared and is read-only once
// the test starts executing.
//
// Node: one logical message slot of one endpoint. A node records the
// endpoint id, the slot index within that endpoint's expectation, the
// endpoint's ordering type and its children.
//
// # Construction Rules
//
// The builder keeps a pointer to the current TOTAL leaf. For every new slot,
// in declaration order:
//
//   - NONE: appended as a fresh root; the leaf is left unchanged
//   - PARTIAL: appended under the current leaf (or as a root when there is
//     none); the leaf is left unchanged so that further PARTIAL slots become
//     siblings
//   - TOTAL: appended under the current leaf (or as a root) and becomes the
//     new leaf, forming a strict chain
//
// For declarations [TOTAL a, PARTIAL b, TOTAL c, NONE d] the forest is:
//
//	a
//	├── b
//	└── c
//	d
//
// # Eligibility
//
// A node is eligible to accept a message once every ancestor on its path to
// a root has been consumed. NONE nodes are always eligible. Consumed state is
// kept outside the forest in a Tracker, one atomic flag per node, so that
// concurrent arrivals at different endpoints never share a lock.
package ordering
