// Command taskflow runs the task management API, the notification worker
// and the schema migrations.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
