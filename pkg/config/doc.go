// Package config loads the OpenFleet application configuration.
//
// Configuration is a single YAML document layered over Default(). Every
// section is optional; keys that are present replace the defaults and
// unknown keys are rejected. The merged result is validated with
// go-playground/validator before it is returned.
//
// # Example
//
//	fleet:
//	  data_file: ./fleet.yaml
//	monitor:
//	  timezone: Asia/Kolkata
//	  rules_dir: ./rules
//	  watch_policies: true
//	store:
//	  enabled: true
//	  path: ./data/openfleet.db
//	telemetry:
//	  logging:
//	    level: debug
package config
