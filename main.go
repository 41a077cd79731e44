// Package main provides a short pointer to the real entry point.
//
// For the full CLI, use: go run ./cmd/rv32i
package main

import "fmt"

func main() {
	fmt.Println("rv32i - a functional RV32I instruction-set simulator")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rv32i -elf program.elf' to execute a program.")
	fmt.Println("Run 'go run ./cmd/rv32i -help' for the full option list.")
}
