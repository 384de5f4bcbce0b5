// The main package for the infograph executable.
package main

import "github.com/JakeFAU/research-infograph/cmd"

func main() {
	cmd.Execute()
}
