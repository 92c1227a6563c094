package main

import (
	"fmt"
	"runtime"

	"github.com/phrazzld/taskflow-api/internal/api"
	"github.com/spf13/cobra"
)

const serviceName = "taskflow"

// serviceInfo is what GET / reports about this build.
func serviceInfo(environment string) api.ServiceInfo {
	return api.ServiceInfo{Name: serviceName, Environment: environment, Version: version}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, %s)\n", serviceName, version, commit, runtime.Version())
		},
	}
}
