package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "HL7 v2.5 ADT / IHE PAM-FR interoperability gateway",
		Long: `gateway ingests HL7 v2.5 ADT messages over MLLP and file drop,
resolves patient/encounter identity, runs them through the IHE PAM-FR
admission/movement state machine, and fans committed changes out to
registered subscribers.`,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newReplayCmd())

	return root
}
