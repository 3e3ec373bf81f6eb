//go:build !isingdebug

package core

func checkSpin(Spin) {}
