package main

import "github.com/Togather-Foundation/rsvp/cmd/server/cmd"

func main() {
	cmd.Execute()
}
