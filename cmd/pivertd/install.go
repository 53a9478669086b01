package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the virtual smart-card reader with the OS (unimplemented)",
	RunE:  runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "pivertd install is not implemented on this platform.")
	fmt.Fprintln(cmd.OutOrStdout(), "Registering a virtual PC/SC reader requires an OS-specific driver")
	fmt.Fprintln(cmd.OutOrStdout(), "(a CCID mini-driver and registry entries on Windows, a PC/SC IFD")
	fmt.Fprintln(cmd.OutOrStdout(), "handler on Linux/macOS); see your platform's smart card framework")
	fmt.Fprintln(cmd.OutOrStdout(), "documentation. 'pivertd serve' runs the emulator core standalone")
	fmt.Fprintln(cmd.OutOrStdout(), "once a virtual reader is wired up by other means.")
	return fmt.Errorf("install: not implemented")
}
