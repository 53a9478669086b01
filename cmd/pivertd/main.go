// Command pivertd runs the PIV card emulator daemon: it loads an
// operator-supplied PKCS#12 credential, builds the card handler around
// it, and serves the virtual-reader transport protocol over TCP.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
