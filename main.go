// File: main.go
package main

import (
	"github.com/hexfn/chauffeur/cmd"
)

// main is the entry point for the chauffeur CLI.
func main() {
	cmd.Execute()
}
