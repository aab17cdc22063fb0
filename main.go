// Entrypoint for the Cobra CLI; command wiring lives in cmd/root.go.

package main

import (
	"github.com/satimg/dipp/cmd"
)

func main() {
	cmd.Execute()
}
