package main

import (
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/app"
)

func main() {
	if err := app.Run(newValidator()); err != nil {
		logrus.WithError(err).Fatal("error running validator")
	}
}
