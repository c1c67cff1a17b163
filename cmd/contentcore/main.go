// Package main is the entry point for contentcore.
package main

func main() {
	Execute()
}
