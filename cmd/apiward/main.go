// Package main is the entry point for apiward, a client-side request
// governor that rate limits, classifies, and cache-annotates traffic to
// a remote API.
package main

func main() {
	Execute()
}
