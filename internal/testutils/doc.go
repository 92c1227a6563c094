// Package testutils holds helpers shared by tests across packages.
package testutils
