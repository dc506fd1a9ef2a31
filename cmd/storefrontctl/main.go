// storefrontctl talks to a running storefront over gRPC.
//
//	storefrontctl products
//	storefrontctl place --type COD --item "Bamboo Stool=2" --name Asha --phone 99999 --address "12 Lake Road"
//	storefrontctl sign --order order_1 --payment pay_1 --secret <key secret>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/payment"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const callTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: storefrontctl <products|place|sign> [flags]")
	}

	switch args[0] {
	case "products":
		return runProducts(args[1:], out)
	case "place":
		return runPlace(args[1:], out)
	case "sign":
		return runSign(args[1:], out)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func runProducts(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("products", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config/config.yaml", "path to the YAML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	client, closeFn, err := connect(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	products, err := client.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		fmt.Fprintf(out, "%-40s %8d\n", p.Title, p.Price)
	}
	return nil
}

func runPlace(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("place", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config/config.yaml", "path to the YAML config file")
	token := flags.String("token", "", "bearer token; guest checkout when empty")
	orderType := flags.String("type", "COD", "COD or ONLINE")
	items := flags.StringArray("item", nil, `cart line as "Title=quantity", repeatable`)
	name := flags.String("name", "", "customer name")
	phone := flags.String("phone", "", "customer phone")
	address := flags.String("address", "", "delivery address")
	gwOrder := flags.String("gateway-order", "", "payment gateway order id (ONLINE)")
	gwPayment := flags.String("gateway-payment", "", "payment gateway payment id (ONLINE)")
	signature := flags.String("signature", "", "payment gateway signature (ONLINE)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	lines, err := parseItems(*items)
	if err != nil {
		return err
	}
	req := order.PlaceRequest{
		Type:  *orderType,
		Items: lines,
		UserDetails: order.CustomerDetails{
			Name:    *name,
			Phone:   *phone,
			Address: *address,
		},
		PaymentData: order.PaymentData{
			GatewayOrderID:   *gwOrder,
			GatewayPaymentID: *gwPayment,
			Signature:        *signature,
		},
	}

	client, closeFn, err := connect(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	id, err := client.PlaceOrder(ctx, *token, req)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(map[string]string{"orderId": id})
}

func runSign(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	orderID := flags.String("order", "", "payment gateway order id")
	paymentID := flags.String("payment", "", "payment gateway payment id")
	secret := flags.String("secret", "", "payment gateway key secret")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *orderID == "" || *paymentID == "" || *secret == "" {
		return errors.New("--order, --payment and --secret are required")
	}

	_, err := fmt.Fprintln(out, payment.Sign(*orderID, *paymentID, *secret))
	return err
}

// parseItems reads "Title=quantity" pairs. The title may itself contain '='.
func parseItems(items []string) ([]models.CartLine, error) {
	lines := make([]models.CartLine, 0, len(items))
	for _, item := range items {
		i := strings.LastIndex(item, "=")
		if i <= 0 {
			return nil, fmt.Errorf("item %q: expected Title=quantity", item)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(item[i+1:]))
		if err != nil {
			return nil, fmt.Errorf("item %q: bad quantity: %w", item, err)
		}
		lines = append(lines, models.CartLine{Title: strings.TrimSpace(item[:i]), Quantity: qty})
	}
	return lines, nil
}

func connect(configPath string) (*grpc.Client, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(config.LogConfig{Level: "warn", Encoding: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return nil, nil, err
	}

	var sd *discovery.ServiceDiscovery
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Service discovery unavailable", zap.Error(err))
			sd = nil
		}
	}

	manager := grpc.NewClientManager(cfg, log, sd)
	if err := manager.Connect(); err != nil {
		if sd != nil {
			sd.Close()
		}
		return nil, nil, err
	}

	closeFn := func() {
		manager.Close()
		if sd != nil {
			sd.Close()
		}
		_ = log.Sync()
	}
	return manager.Client(), closeFn, nil
}
