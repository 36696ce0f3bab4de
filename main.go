/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/spf13/cobra"
)

const (
	releaseVersion = "0.1.0"
)

func main() {
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
