// Package main is the entry point for cfusage, the quarterly usage rollup
// service for Cloud Foundry foundations.
package main

func main() {
	Execute()
}
