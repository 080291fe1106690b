package main

import "github.com/bryanchriswhite/InfinitePIP/cmd/infinitepip/commands"

func main() {
	commands.Execute()
}
