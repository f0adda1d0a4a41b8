package main

import "github.com/frahmantamala/smartwater-vending/cmd"

func main() {
	cmd.Execute()
}
