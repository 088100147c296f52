package main

import "crepes-svc/commands"

func main() {
	commands.Execute()
}
