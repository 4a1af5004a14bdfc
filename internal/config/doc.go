// Package config loads polygene configuration.
//
// A configuration file is YAML:
//
//	store:
//	  driver: sqlite
//	  path: ./entities.db
//	retry:
//	  max_retries: 3
//	  initial_delay: 50ms
//	  backoff: 25ms
//	propagation: required
//	metrics:
//	  namespace: polygene
//
// Load decodes the file over Defaults and validates the result against the
// embedded CUE schema (schema.cue), which names the allowed drivers and the
// settings each one requires. OpenStore builds the configured entity store.
package config
