// warden is the CLI for the governed-execution core: propose actions, issue
// and revoke approval tokens, execute approved proposals, and manage tools.
package main

func main() {
	Execute()
}
