package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) trainModel() error {
	metrics, err := cli.hwSvc.Train(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("trained on %d writers: %d train / %d test samples, val loss %.4f, val accuracy %.2f%%\n",
		metrics.Classes, metrics.TrainSamples, metrics.TestSamples, metrics.ValLoss, metrics.ValAccuracy*100)
	return nil
}
