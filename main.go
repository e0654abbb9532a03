package main

import "github.com/theirongolddev/paychat/cmd"

func main() {
	cmd.Execute()
}
