package main

import "gas-topup-alerts/internal/cli"

func main() {
	cli.Execute()
}
