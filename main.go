// The main package for the petscraper executable.
package main

import (
	"github.com/JakeFAU/pet-listings-scraper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
