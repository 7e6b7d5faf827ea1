package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"go-fulfillment-saga/order-processing/orders"
	"go-fulfillment-saga/order-processing/types"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// call sends body as JSON and pretty prints the worker's answer
func call(cmd *cobra.Command, method, path string, body any) error {
	base, _ := cmd.Flags().GetString("api")

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, strings.TrimRight(base, "/")+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", uuid.NewString())

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worker unreachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintln(os.Stdout, pretty.String())
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func registerInstrumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-instrument",
		Short: "Store a payment instrument holding one provider token",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			token, _ := cmd.Flags().GetString("token")
			provider, _ := cmd.Flags().GetString("provider")
			ins := types.Instrument{
				UserID:        user,
				Usage:         "purchases",
				PaymentMethod: "card",
				Tokens:        []types.ProviderToken{{Provider: provider, Token: token}},
			}
			return call(cmd, http.MethodPost, "/instruments", ins)
		},
	}
	cmd.Flags().String("user", "user-123", "Owner of the instrument")
	cmd.Flags().String("token", "tok_visa", "Provider token")
	cmd.Flags().String("provider", "sandbox", "Provider the token belongs to")
	return cmd
}

func createOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-order",
		Short: "Create an order with one purchase record per --item",
		Long: `Create an order. Each --item is entity:code:amount in minor units,
for example --item portraits:P-8x10:2500. A request file passed with
--file is sent as is and the other flags are ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file, _ := cmd.Flags().GetString("file"); file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var req orders.CreateOrderRequest
				if err := json.Unmarshal(raw, &req); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
				return call(cmd, http.MethodPost, "/orders", req)
			}

			user, _ := cmd.Flags().GetString("user")
			instrument, _ := cmd.Flags().GetString("instrument")
			currency, _ := cmd.Flags().GetString("currency")
			items, _ := cmd.Flags().GetStringSlice("item")
			req := orders.CreateOrderRequest{UserID: user, InstrumentID: instrument}
			for _, raw := range items {
				purchase, err := parseItem(raw, currency)
				if err != nil {
					return err
				}
				req.Purchases = append(req.Purchases, purchase)
			}
			log.Printf("Creating order for %s with %d purchase(s)\n", user, len(req.Purchases))
			return call(cmd, http.MethodPost, "/orders", req)
		},
	}
	cmd.Flags().String("user", "user-123", "Buyer")
	cmd.Flags().String("instrument", "", "Instrument id returned by register-instrument")
	cmd.Flags().String("currency", "USD", "Currency of every item")
	cmd.Flags().StringSlice("item", []string{"portraits:P-8x10:2500"}, "entity:code:amount")
	cmd.Flags().StringP("file", "f", "", "JSON create-order request")
	return cmd
}

func parseItem(item, currency string) (orders.PurchaseRequest, error) {
	parts := strings.Split(item, ":")
	if len(parts) != 3 {
		return orders.PurchaseRequest{}, fmt.Errorf("item %q: want entity:code:amount", item)
	}
	var amount int64
	if _, err := fmt.Sscan(parts[2], &amount); err != nil {
		return orders.PurchaseRequest{}, fmt.Errorf("item %q: bad amount: %w", item, err)
	}
	return orders.PurchaseRequest{
		Description: parts[1],
		Entity:      parts[0],
		LineItems: []types.LineItem{{
			ProductCode: parts[1],
			ProductName: parts[1],
			Amount:      types.NewMoney(amount, currency, 2),
			Type:        types.LineItemBaseProduct,
		}},
	}, nil
}

func getOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-order [order-id]",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/orders/"+args[0], nil)
		},
	}
}

func advanceRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance-record [record-id]",
		Short: "Move a purchase record to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			body := map[string]string{"status": strings.ToUpper(status)}
			return call(cmd, http.MethodPost, "/records/"+args[0]+"/advance", body)
		},
	}
	cmd.Flags().StringP("status", "s", "COMPLETED", "PROCESSING, COMPLETED or FAILED")
	return cmd
}

func reprocessRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess-record [record-id]",
		Short: "Refresh a purchase record's progress note and SLA check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/records/"+args[0]+"/reprocess", nil)
		},
	}
}
