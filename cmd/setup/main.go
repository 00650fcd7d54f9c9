// Command setup ensures the ec_sys kernel module is loaded with write
// support, building and installing it from kernel source if necessary.
// It is a thin wrapper over internal/setup; fancontrold also calls the
// same package directly at startup when EcAccessMode requires it.
package main

import (
	"fmt"
	"os"

	"github.com/ectherm/fancontrold/internal/setup"
)

func main() {
	if err := setup.CheckAndSetup(setup.EcAccessEcSys); err == nil {
		fmt.Println("ec_sys module is ready with write support.")
		return
	}

	fmt.Println("ec_sys module missing or incomplete; rebuilding from kernel source...")
	if err := setup.RunFullSetup(nil); err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("setup completed successfully.")
}
