// storefrontctl is a CLI for exercising a running storefront server.
// Each command performs a single operation, making it composable for scripts.
//
// Examples:
//
//	SID=$(storefrontctl session -q)
//	storefrontctl products --session $SID
//	storefrontctl search --session $SID --wait phone
//	storefrontctl add --session $SID p1 --qty 2
//	storefrontctl set --session $SID p1 0
//	storefrontctl cart --session $SID
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/handler"
	"storefront/internal/session"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s✗ %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storefrontctl",
		Short: "Storefront catalog and cart test tool",
		Long: `storefrontctl talks to a storefront server's REST API.

Pass --session (or set STOREFRONT_SESSION) to keep using the same cart.
Without it the server starts a new session and its id is printed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				disableColors()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr("STOREFRONT_URL", "http://localhost:8080"), "storefront server base URL")
	flags.StringVar(&sessionID, "session", os.Getenv("STOREFRONT_SESSION"), "session id from a previous command")
	flags.BoolVarP(&quiet, "quiet", "q", false, "quiet mode - only output ids and values")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "show full request/response")

	root.AddCommand(
		newSessionCmd(),
		newProductsCmd(),
		newSearchCmd(),
		newRetryCmd(),
		newCartCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newSetCmd(),
		newPruneCmd(),
	)
	return root
}

// =============================================================================
// COMMANDS
// =============================================================================

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Start a new session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID = ""
			var resp handler.ProductsResponse
			id, err := doRequest("GET", "/products", nil, &resp)
			if err != nil {
				return err
			}
			if quiet {
				fmt.Println(id)
				return nil
			}
			printSuccess("Session started")
			fmt.Printf("  ID: %s%s%s\n", colorCyan, id, colorReset)
			return nil
		},
	}
}

func newProductsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the displayed products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.ProductsResponse
			id, err := doRequest("GET", "/products", nil, &resp)
			if err != nil {
				return err
			}
			printProducts(id, &resp)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Change the search query (empty restores the full catalog)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			var resp handler.ProductsResponse
			id, err := doRequest("PUT", "/search", handler.SearchRequest{Query: query}, &resp)
			if err != nil {
				return err
			}
			if wait {
				if err := waitForSearch(id, &resp, timeout); err != nil {
					return err
				}
			}
			printProducts(id, &resp)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the debounced search to complete")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long --wait polls")
	return cmd
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reload the catalog and re-run the active search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.ProductsResponse
			id, err := doRequest("POST", "/retry", nil, &resp)
			if err != nil {
				return err
			}
			printProducts(id, &resp)
			return nil
		},
	}
}

func newCartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cart",
		Short: "Show the cart and its total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.CartResponse
			id, err := doRequest("GET", "/cart", nil, &resp)
			if err != nil {
				return err
			}
			printCart(id, &resp)
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adjust(args[0], qty)
		},
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity to add")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Decrease a product's cart quantity (never below zero)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adjust(args[0], -qty)
		},
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity to remove")
	return cmd
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <product-id> <qty>",
		Short: "Set a product's cart quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			var resp handler.CartResponse
			id, err := doRequest("PUT", "/cart/items/"+url.PathEscape(args[0]), handler.SetItemRequest{Quantity: &qty}, &resp)
			if err != nil {
				return err
			}
			printCart(id, &resp)
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop zero-quantity lines from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.CartResponse
			id, err := doRequest("DELETE", "/cart/items", nil, &resp)
			if err != nil {
				return err
			}
			printCart(id, &resp)
			return nil
		},
	}
}

// pollInterval is how often waitForSearch re-reads the product list.
var pollInterval = 100 * time.Millisecond

// waitForSearch polls GET /products on session id until the server reports
// no scheduled or running search, leaving the final list in resp.
func waitForSearch(id string, resp *handler.ProductsResponse, timeout time.Duration) error {
	// Pin the session so polling reads the same view.
	sessionID = id
	deadline := time.Now().Add(timeout)
	for resp.Searching {
		if time.Now().After(deadline) {
			return fmt.Errorf("search still pending after %v", timeout)
		}
		time.Sleep(pollInterval)
		*resp = handler.ProductsResponse{}
		if _, err := doRequest("GET", "/products", nil, resp); err != nil {
			return err
		}
	}
	return nil
}

func adjust(productID string, delta int) error {
	var resp handler.CartResponse
	id, err := doRequest("POST", "/cart/items", handler.AdjustItemRequest{ProductID: productID, Delta: &delta}, &resp)
	if err != nil {
		return err
	}
	printCart(id, &resp)
	return nil
}

// =============================================================================
// HTTP
// =============================================================================

// doRequest sends a JSON request with the session header and decodes the
// response into out. Returns the session id the server answered with.
func doRequest(method, path string, body, out any) (string, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		header, err := session.FormatHeader(sessionID)
		if err != nil {
			return "", fmt.Errorf("session %q: %w", sessionID, err)
		}
		req.Header.Set(session.Header, header)
	}

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	id := sessionID
	if h := resp.Header.Get(session.Header); h != "" {
		if parsed, err := session.ParseHeader(h); err == nil {
			id = parsed
		}
	}

	if resp.StatusCode >= 400 {
		return id, apiError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return id, fmt.Errorf("parsing response: %w", err)
	}
	return id, nil
}

// apiError turns an error response body into a readable error.
func apiError(status int, body []byte) error {
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Code == "" {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	return errors.New(resp.Error.Code + ": " + resp.Error.Message)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
