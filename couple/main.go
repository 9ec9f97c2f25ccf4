// Command couple runs coupling scenarios on an in-process world of ranks.
package main

import "github.com/sarchlab/coupling/couple/cmd"

func main() {
	cmd.Execute()
}
