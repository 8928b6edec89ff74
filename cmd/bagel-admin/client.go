package main

import (
	"github.com/bagel-payroll/bagel-server/pkg/payroll"
	"github.com/bagel-payroll/bagel-server/pkg/solana"
	"github.com/bagel-payroll/bagel-server/pkg/solana/inco"
)

func newPayrollClient() (*payroll.Client, error) {
	return payroll.NewClient(
		payroll.NewRPCSubmitter(solana.New(solana.ResolveCluster(rpcURL))),
		inco.DevnetNetworkKey(),
		payroll.WithEnvConfigs(),
	)
}
