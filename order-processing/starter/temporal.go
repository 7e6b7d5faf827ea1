package main

import (
	"log"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/types"
	"go-fulfillment-saga/order-processing/workflows"
)

func dial(cmd *cobra.Command) (client.Client, error) {
	host, _ := cmd.Flags().GetString("temporal")
	return client.Dial(client.Options{HostPort: host})
}

func fulfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fulfill [order-id]",
		Short: "Run the orchestrator for an order now",
		Long: `Start the fulfillment workflow for an order right away. If one is
already running for the order the existing run is reported instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			taskQueue, _ := cmd.Flags().GetString("task-queue")
			wait, _ := cmd.Flags().GetBool("wait")
			ref := scheduler.Ref{Kind: scheduler.KindOrder, ID: args[0]}
			workflowID := scheduler.WorkflowID(ref)

			// Configure workflow options
			workflowOptions := client.StartWorkflowOptions{
				ID:        workflowID,
				TaskQueue: taskQueue,
			}

			log.Printf("Starting %s: %s\n", scheduler.FulfillOrderWorkflowName, workflowID)

			// Start workflow
			we, err := c.ExecuteWorkflow(cmd.Context(), workflowOptions, scheduler.FulfillOrderWorkflowName,
				types.FulfillmentRequest{OrderID: args[0]})
			if err != nil {
				return err
			}
			log.Printf("Started workflow - WorkflowID: %s, RunID: %s\n", we.GetID(), we.GetRunID())
			log.Printf("  Query status: starter status %s\n", args[0])

			if !wait {
				return nil
			}
			var result types.FulfillmentResult
			if err := we.Get(cmd.Context(), &result); err != nil {
				return err
			}
			log.Printf("Order %s settled as %s\n", result.OrderID, result.Status)
			return nil
		},
	}
	cmd.Flags().Bool("wait", false, "Block until the order is terminal")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [order-id]",
		Short: "Query the running fulfillment workflow of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			workflowID := scheduler.WorkflowID(scheduler.Ref{Kind: scheduler.KindOrder, ID: args[0]})
			resp, err := c.QueryWorkflow(cmd.Context(), workflowID, "", workflows.StatusQuery)
			if err != nil {
				return err
			}
			var status types.FulfillmentResult
			if err := resp.Get(&status); err != nil {
				return err
			}
			log.Printf("Order:      %s\n", args[0])
			log.Printf("Status:     %s\n", status.Status)
			log.Printf("Terminal:   %v\n", status.Terminal)
			log.Printf("Next run in %s\n", status.NextDelay)
			return nil
		},
	}
}
