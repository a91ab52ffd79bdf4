// Package cmd implements the ractl command tree.
package cmd
