// Package secret keeps credentials out of config files and logs.
//
// Config values may reference the environment as ${VAR}; ExpandEnvStrict
// fails when a referenced variable is unset instead of silently producing
// an empty connection string. RedactURL masks the password of a store URL
// before it is logged.
package secret
