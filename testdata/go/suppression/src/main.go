package main

import "fmt"

// understory:suppress magic-number
func table() []int {
	return []int{3, 5, 8}
}

func main() {
	// FIXME: read from flags
	retries := 3
	if retries > 10 {
	}
	fmt.Println(retries, table())
}
