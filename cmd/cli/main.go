package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/auth"
)

var (
	baseURL string
	timeout time.Duration
	token   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gocredit-cli",
		Short:        "GoCredit CLI tool",
		Long:         `A command line interface for interacting with the GoCredit API.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the GoCredit API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GOCREDIT_TOKEN"), "Bearer token (defaults to $GOCREDIT_TOKEN)")

	rootCmd.AddCommand(facilityCmd(), approvalCmd(), priceCmd(), tokenCmd())
	return rootCmd
}

func facilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facility",
		Short: "Credit facility operations",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List credit facilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), fmt.Sprintf("/api/v1/facilities?limit=%d&offset=%d", limit, offset))
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	getCmd := &cobra.Command{
		Use:   "get <facility-id>",
		Short: "Show a facility with balances and collateralization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/facilities/"+args[0])
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <facility-id>",
		Short: "Show the history of a facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/v1/facilities/"+args[0]+"/history?limit=100", nil)
			if err != nil {
				return err
			}
			return printHistory(os.Stdout, body)
		},
	}

	cmd.AddCommand(listCmd, getCmd, historyCmd)
	return cmd
}

func approvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Approval process operations",
	}

	getCmd := &cobra.Command{
		Use:   "get <process-id>",
		Short: "Show an approval process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/approval-processes/"+args[0])
		},
	}

	var deny bool
	var reason string
	voteCmd := &cobra.Command{
		Use:   "vote <process-id>",
		Short: "Approve (or with --deny, deny) an approval process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"approve": !deny}
			if deny {
				payload["reason"] = reason
			}
			body, err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/v1/approval-processes/"+args[0]+"/votes", payload)
			if err != nil {
				return err
			}
			printRaw(body)
			return nil
		},
	}
	voteCmd.Flags().BoolVar(&deny, "deny", false, "Deny instead of approve")
	voteCmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with a denial")

	cmd.AddCommand(getCmd, voteCmd)
	return cmd
}

func priceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Collateral price operations",
	}

	setCmd := &cobra.Command{
		Use:   "set <price>",
		Short: "Set the collateral price and refresh collateralization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newAPIClient().do(cmd.Context(), http.MethodPut, "/api/v1/collateral-price", map[string]string{"price": args[0]})
			if err != nil {
				return err
			}
			printRaw(body)
			return nil
		},
	}

	cmd.AddCommand(setCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID, email, role, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with the server's JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("a JWT secret is required (--secret or $JWT_SECRET)")
			}
			signed, err := auth.NewJWTManager(secret, ttl).Generate(&domain.User{
				ID:    userID,
				Email: email,
				Role:  domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID recorded as the audit subject")
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleOperator), "Role: admin, operator or viewer")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends a JSON request and returns the body of a 2xx response.
func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func getAndPrint(ctx context.Context, path string) error {
	body, err := newAPIClient().do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	printRaw(body)
	return nil
}

type historyRow struct {
	Sequence   int64          `json:"sequence"`
	EventType  string         `json:"event_type"`
	Summary    map[string]any `json:"summary"`
	RecordedAt time.Time      `json:"recorded_at"`
}

func printHistory(w io.Writer, body []byte) error {
	var rows []historyRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tEVENT\tRECORDED\tSUMMARY")
	for _, row := range rows {
		summary, _ := json.Marshal(row.Summary)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			row.Sequence,
			row.EventType,
			row.RecordedAt.Format(time.RFC3339),
			truncate(string(summary), 60),
		)
	}
	return tw.Flush()
}

func printRaw(body []byte) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Println(string(body))
		return
	}
	printJSON(v)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Failed to format output: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
