// Package config loads the YAML application configuration and watches it for
// changes so delivery tuning can be adjusted without a restart.
package config
