package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "starter",
		Short:        "Drive orders through a running fulfillment worker",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("api", getEnv("WORKER_API", "http://localhost:8080"), "Worker HTTP address")
	rootCmd.PersistentFlags().String("temporal", getEnv("TEMPORAL_HOST", "localhost:7233"), "Temporal frontend address")
	rootCmd.PersistentFlags().String("task-queue", getEnv("ORDER_TASK_QUEUE", "order-fulfillment-task-queue"), "Task queue the worker polls")

	rootCmd.AddCommand(registerInstrumentCmd())
	rootCmd.AddCommand(createOrderCmd())
	rootCmd.AddCommand(getOrderCmd())
	rootCmd.AddCommand(advanceRecordCmd())
	rootCmd.AddCommand(reprocessRecordCmd())
	rootCmd.AddCommand(fulfillCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
