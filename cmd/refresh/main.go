// refresh pre-warms the exchange reference tables and optionally resolves
// ISINs passed as arguments. Run it from cron before market open so the
// server never downloads the symbol masters on a live request path.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"fundlens/internal/refdata"
)

func main() {
	godotenv.Load()
	logger := logrus.New()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resolver := refdata.NewResolver(logger)
	primary, secondary := resolver.Warm(ctx)
	if primary == 0 && secondary == 0 {
		logger.Fatal("both reference table downloads failed")
	}
	fmt.Printf("reference tables warmed: %d NSE symbols, %d BSE symbols\n", primary, secondary)

	for _, isin := range os.Args[1:] {
		sym, err := resolver.ResolveSymbol(ctx, isin)
		if err != nil {
			fmt.Printf("%s: not found\n", isin)
			continue
		}
		fmt.Printf("%s: %s\n", isin, sym)
	}
}
