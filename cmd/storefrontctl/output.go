package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront/internal/handler"
)

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printProducts(id string, resp *handler.ProductsResponse) {
	if quiet {
		for _, p := range resp.Products {
			fmt.Println(p.ID)
		}
		return
	}

	printSession(id)
	if resp.Query != "" {
		fmt.Printf("  Query: %s%q%s\n", colorCyan, resp.Query, colorReset)
	}
	if resp.Searching {
		printInfo("search pending")
	}
	if resp.Error != nil {
		printWarning("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Products) == 0 {
		printInfo("no products")
		return
	}
	for _, p := range resp.Products {
		fmt.Printf("  %s%-12s%s %-32s %s%-12s%s %8.2f  %s\n",
			colorBold, p.ID, colorReset, p.Name, colorGray, p.Category, colorReset, p.Cost, stars(p.Rating))
	}
}

func printCart(id string, resp *handler.CartResponse) {
	if quiet {
		fmt.Println(resp.FormattedTotal)
		return
	}

	printSession(id)
	if resp.Empty {
		printInfo("cart is empty")
	}
	for _, item := range resp.Items {
		fmt.Printf("  %s%-12s%s %-32s x%-3d %8.2f\n",
			colorBold, item.ID, colorReset, item.Name, item.Quantity, item.Subtotal())
	}
	fmt.Printf("  Items: %d\n", resp.ItemCount)
	fmt.Printf("  Total: %s%s%s\n", colorGreen, resp.FormattedTotal, colorReset)
}

func printSession(id string) {
	if id != "" && id != sessionID {
		fmt.Printf("%s→ session %s%s\n", colorGray, id, colorReset)
	}
}

func stars(rating int) string {
	rating = max(0, min(rating, 5))
	return colorYellow + strings.Repeat("★", rating) + colorGray + strings.Repeat("☆", 5-rating) + colorReset
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}
