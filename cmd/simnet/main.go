// Command simnet runs in-process ledger clusters over the simulated network.
package main

func main() {
	Execute()
}
