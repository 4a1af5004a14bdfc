// Package harness runs unit-of-work scenarios written in YAML and compares
// their traces against golden files.
//
// # Scenario Format
//
//	name: optimistic_conflict
//	description: "Two units update the same entity; the second loses"
//	types:
//	  - name: Account
//	setup:
//	  - type: Account
//	    ref: acc-1
//	    properties: { balance: 10 }
//	flow:
//	  - op: open
//	    unit: u1
//	  - op: get
//	    unit: u1
//	    type: Account
//	    ref: acc-1
//	  - op: complete
//	    unit: u1
//	    expect: CONCURRENT_MODIFICATION
//	assertions:
//	  - type: unit_state
//	    unit: u1
//	    state: FAILED
//
// # Flow Operations
//
//   - open: create a unit in an execution context (context defaults to "main")
//   - new, get: obtain an entity handle in a unit
//   - set: change properties of a handle held by the unit
//   - remove: remove a handle held by the unit
//   - complete, discard, pause, resume: drive the unit lifecycle
//   - conflict: make the next prepare calls fail with a version conflict
//   - current: check which unit is current in an execution context
//
// A step succeeds when its outcome equals expect, "ok" when expect is empty.
// Outcomes are unit-of-work error codes.
//
// # Assertion Types
//
//   - unit_state: a unit ended in the given state
//   - entity: a persisted entity has the version and properties given
//   - absent: no entity is persisted under ref
//   - store_count: the store saw op exactly count times during the flow
//
// # Deterministic Testing
//
// Scenarios run against a fresh in-memory store with a deterministic clock
// and sequential identities. The trace interleaves flow steps with the store
// calls they caused, so golden files pin both the API outcomes and the I/O.
package harness
