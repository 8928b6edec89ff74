package main

import (
	"fmt"
	"io"
	"math/big"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/bagel-payroll/bagel-server/pkg/payroll"
)

const lamportsPerSol = 1_000_000_000

func formatSol(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).
		Div(decimal.NewFromInt(lamportsPerSol)).
		StringFixed(9) + " SOL"
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.GreenString("✓")+" "+fmt.Sprintf(format, args...))
}

func printStep(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.CyanString("→")+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, color.YellowString("!")+" "+fmt.Sprintf(format, args...))
}

func printField(w io.Writer, name string, value interface{}) {
	fmt.Fprintf(w, "  %-26s %v\n", color.CyanString(name+":"), value)
}

func printResult(w io.Writer, action string, result *payroll.Result) {
	printSuccess(w, "%s", action)
	if result == nil {
		return
	}
	printField(w, "signature", result.Signature.ToBase58())
	printField(w, "slot", result.Slot)
}
