package main

import "github.com/jjenkins/tenders/cmd"

func main() {
	cmd.Execute()
}
