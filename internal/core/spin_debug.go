//go:build isingdebug

package core

import "fmt"

func checkSpin(v Spin) {
	if !v.Valid() {
		panic(fmt.Sprintf("core: invalid spin %d", v))
	}
}
