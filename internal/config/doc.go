// Package config provides configuration management for choreo.
//
// Configuration is loaded from a single directory containing a config.yaml
// file. The default directory is ~/.config/choreo; commands accept
// --config-path to point elsewhere. A missing file is not an error, the
// defaults from GetDefaultConfig apply instead.
//
// # File Format
//
//	timing:
//	  minimalWait: 2s
//	  perMessageWait: 250ms
//	runner:
//	  parallel: 4
//	  failFast: true
//	transport:
//	  default: http
//	  http:
//	    listen: localhost:8095
//	    targets:
//	      checkout: http://localhost:9000/checkout
//	report:
//	  format: json
//	  path: ./reports
//
// Values from the file are layered over the defaults and validated as a
// whole; every problem found is reported through a ConfigurationError of
// type "validation". Command line flags override the loaded values.
package config
