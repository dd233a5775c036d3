package main

import "github.com/jcdickinson/ferrisnav/cmd"

func main() {
	cmd.Execute()
}
