// Package confloader loads rxhttp configuration and watches it for changes.
//
// Sources, from lowest to highest priority:
//
//  1. Default values already present in the target struct
//  2. A YAML configuration file
//  3. RXHTTP_ environment variables (levels separated by "__")
//  4. Command line flags, passed as a dotted-key map
//
// Watcher reports writes to watched files so that callers can Reload.
package confloader
